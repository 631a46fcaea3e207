// Package expense provides the recurring-expense obligation kind and the
// "add recurring expense" admin action.
package expense

import (
	"github.com/warp/obligation-engine/obligation"
)

// Kind is the concrete obligation kind for organizational expenses.
// Expenses only carry a base channel.
type Kind string

func (k Kind) KindID() string                 { return string(k) }
func (k Kind) Channels() []obligation.Channel { return []obligation.Channel{obligation.ChannelBase} }

var _ obligation.Kind = Kind("")

const KindRecurring Kind = "expense"

func init() {
	obligation.RegisterKind(KindRecurring)
}
