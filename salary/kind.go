/*
Package salary provides the salary obligation kinds and the "set employee
salary" admin action.

PURPOSE:
  Every employee has exactly one salary definition. It pays a fixed base
  salary each month plus optional bonus channels:

  KINDS:
    salary:        base + reward (every employee can get a reward bonus)
    salary_sales:  base + incentive + reward (sales department only)

  The kind is chosen from the employee's department when the salary is
  set. Entries already generated keep the kind and amounts they were
  created with.

SEE ALSO:
  - service.go: SetEmployeeSalary
  - obligation/kind.go: Kind registry
*/
package salary

import (
	"strings"

	"github.com/warp/obligation-engine/obligation"
)

// =============================================================================
// SALARY KINDS
// =============================================================================

// Kind is the concrete obligation kind for salaries.
type Kind string

func (k Kind) KindID() string { return string(k) }

func (k Kind) Channels() []obligation.Channel {
	if k == KindSales {
		return []obligation.Channel{obligation.ChannelBase, obligation.ChannelIncentive, obligation.ChannelReward}
	}
	return []obligation.Channel{obligation.ChannelBase, obligation.ChannelReward}
}

var _ obligation.Kind = Kind("")

const (
	KindStandard Kind = "salary"
	KindSales    Kind = "salary_sales"
)

// DepartmentSales is the department whose employees earn incentives.
const DepartmentSales = "sales"

func init() {
	obligation.RegisterKind(KindStandard)
	obligation.RegisterKind(KindSales)
}

// KindFor returns the salary kind for a department.
func KindFor(department string) Kind {
	if strings.EqualFold(strings.TrimSpace(department), DepartmentSales) {
		return KindSales
	}
	return KindStandard
}

// IsSalaryKind reports whether kindID belongs to this package.
func IsSalaryKind(kindID string) bool {
	return kindID == string(KindStandard) || kindID == string(KindSales)
}
