package service

import "context"

// Capability names the decisions the attempt subsystem asks the access policy
// about.
type Capability string

const (
	CapabilityPreview          Capability = "quiz:preview"
	CapabilityViewReports      Capability = "quiz:viewreports"
	CapabilityViewHiddenGrades Capability = "quiz:viewhiddengrades"
	CapabilityManageAttempts   Capability = "quiz:manageattempts"
)

// AccessPolicy answers allow/deny for one user and capability. Injected so
// decision points are explicit and tests can substitute a fixed policy.
type AccessPolicy interface {
	Allows(ctx context.Context, userID uint, role string, capability Capability) bool
}

type roleAccessPolicy struct{}

// NewRoleAccessPolicy returns the default policy: teachers and admins hold
// every quiz capability, students hold none of them.
func NewRoleAccessPolicy() AccessPolicy {
	return roleAccessPolicy{}
}

func (roleAccessPolicy) Allows(_ context.Context, _ uint, role string, _ Capability) bool {
	switch role {
	case "admin", "teacher":
		return true
	default:
		return false
	}
}
