package model

import (
	"fmt"
	"time"
)

type LifecycleEvent string

const (
	EventApprove LifecycleEvent = "approve"
	EventRevoke  LifecycleEvent = "revoke"
)

// Transition applies an admin lifecycle event to an institution account.
//
//	pending  --approve--> approved (role institution)
//	revoked  --approve--> approved (role institution)
//	approved --revoke-->  revoked  (role pending_institution)
//
// Any other combination, and any actor that is not an admin, yields ErrInvalidTransition
// or ErrForbidden and leaves u untouched.
func (u *User) Transition(actorRole Role, event LifecycleEvent, now time.Time) error {
	if actorRole != RoleAdmin {
		return ErrForbidden
	}

	if u.Role != RolePendingInstitution && u.Role != RoleInstitution {
		return fmt.Errorf("%w: %s accounts have no institution lifecycle", ErrInvalidTransition, u.Role)
	}

	switch event {
	case EventApprove:
		if u.Status != StatusPending && u.Status != StatusRevoked {
			return fmt.Errorf("%w: cannot approve from %s", ErrInvalidTransition, u.Status)
		}
		u.Role = RoleInstitution
		u.Status = StatusApproved
	case EventRevoke:
		if u.Status != StatusApproved {
			return fmt.Errorf("%w: cannot revoke from %s", ErrInvalidTransition, u.Status)
		}
		u.Role = RolePendingInstitution
		u.Status = StatusRevoked
	default:
		return fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, event)
	}

	u.UpdatedAt = now
	return nil
}
