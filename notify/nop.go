package notify

import (
	"context"

	"github.com/warp/obligation-engine/obligation"
)

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

var _ obligation.Notifier = Nop{}

func (Nop) PaymentRecorded(context.Context, obligation.PaymentEvent) error { return nil }
