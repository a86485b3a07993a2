package reconcile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mubeen104/uips-attendance/internal/storage"
)

// LeavePolicy controls which leave balance an unexcused absence is deducted
// from. The type priority is deliberately configuration, not code: the
// ordering is an HR policy, not an engine invariant.
type LeavePolicy struct {
	// Leave type codes tried in order.
	Priority []string `yaml:"priority"`
	// Fall through to any type with a positive balance when the priority
	// list is exhausted.
	AnyWithBalance bool `yaml:"any_with_balance"`
	// Absence type recorded on generated rows.
	AbsenceType string `yaml:"absence_type"`
}

func DefaultLeavePolicy() LeavePolicy {
	return LeavePolicy{
		Priority:       []string{"annual", "casual"},
		AnyWithBalance: true,
		AbsenceType:    "unexcused",
	}
}

// LoadLeavePolicy reads the policy file; an empty path yields the default.
func LoadLeavePolicy(path string) (LeavePolicy, error) {
	policy := DefaultLeavePolicy()
	if path == "" {
		return policy, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("reading leave policy: %w", err)
	}
	if err := yaml.Unmarshal(buf, &policy); err != nil {
		return policy, fmt.Errorf("parsing leave policy: %w", err)
	}
	if policy.AbsenceType == "" {
		policy.AbsenceType = "unexcused"
	}
	return policy, nil
}

// pick selects the allocation to deduct from, or nil when no balance can
// cover the deduction.
func (p LeavePolicy) pick(allocations []storage.LeaveAllocation, days float64) *storage.LeaveAllocation {
	for _, code := range p.Priority {
		for i := range allocations {
			if allocations[i].LeaveTypeCode == code && allocations[i].Remaining() >= days {
				return &allocations[i]
			}
		}
	}
	if p.AnyWithBalance {
		for i := range allocations {
			if allocations[i].Remaining() >= days {
				return &allocations[i]
			}
		}
	}
	return nil
}
