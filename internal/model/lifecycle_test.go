package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUserTransition(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("admin approves pending institution", func(t *testing.T) {
		u := User{Role: RolePendingInstitution, Category: CategoryRoad, Status: StatusPending}

		require.NoError(t, u.Transition(RoleAdmin, EventApprove, now))
		require.Equal(t, RoleInstitution, u.Role)
		require.Equal(t, StatusApproved, u.Status)
		require.Equal(t, now, u.UpdatedAt)
	})

	t.Run("revoke moves to a distinct revoked state", func(t *testing.T) {
		u := User{Role: RoleInstitution, Category: CategoryWater, Status: StatusApproved}

		require.NoError(t, u.Transition(RoleAdmin, EventRevoke, now))
		require.Equal(t, RolePendingInstitution, u.Role)
		require.Equal(t, StatusRevoked, u.Status)

		require.NoError(t, u.Transition(RoleAdmin, EventApprove, now))
		require.Equal(t, RoleInstitution, u.Role)
	})

	t.Run("non admin actor is refused", func(t *testing.T) {
		u := User{Role: RolePendingInstitution, Status: StatusPending}

		err := u.Transition(RoleInstitution, EventApprove, now)
		require.ErrorIs(t, err, ErrForbidden)
		require.Equal(t, StatusPending, u.Status)
	})

	t.Run("invalid combinations", func(t *testing.T) {
		cases := []struct {
			name  string
			user  User
			event LifecycleEvent
		}{
			{"citizen has no lifecycle", User{Role: RoleCitizen, Status: StatusApproved}, EventRevoke},
			{"approve twice", User{Role: RoleInstitution, Status: StatusApproved}, EventApprove},
			{"revoke pending", User{Role: RolePendingInstitution, Status: StatusPending}, EventRevoke},
			{"unknown event", User{Role: RolePendingInstitution, Status: StatusPending}, LifecycleEvent("delete")},
		}

		for _, tc := range cases {
			before := tc.user
			err := tc.user.Transition(RoleAdmin, tc.event, now)
			require.True(t, errors.Is(err, ErrInvalidTransition), tc.name)
			require.Equal(t, before, tc.user, tc.name)
		}
	})
}

func TestParseRoleAndCategory(t *testing.T) {
	t.Parallel()

	role, ok := ParseRole(" Pending_Institution ")
	require.True(t, ok)
	require.Equal(t, RolePendingInstitution, role)
	require.True(t, role.RequiresCategory())

	_, ok = ParseRole("superuser")
	require.False(t, ok)

	category, ok := ParseCategory("publicservices")
	require.True(t, ok)
	require.Equal(t, CategoryPublicServices, category)

	require.Equal(t, StatusPending, DefaultStatus(RolePendingInstitution))
	require.Equal(t, StatusApproved, DefaultStatus(RoleCitizen))
	require.Equal(t, "a@x.com", NormalizeEmail("  A@X.com "))
}
