package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citizen-voice/internal/model"
	"citizen-voice/pkg/apierror"
)

type complaintFixture struct {
	env       *testEnv
	admin     *model.AuthClaims
	citizenA  *model.AuthClaims
	citizenB  *model.AuthClaims
	water     *model.AuthClaims
	roads     *model.AuthClaims
	complaint model.Complaint
}

// newComplaintFixture registers two citizens and two approved institutions and
// files one Water complaint as citizen A.
func newComplaintFixture(t *testing.T) complaintFixture {
	t.Helper()

	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)

	approve := func(name, email string, category string) *model.AuthClaims {
		res := env.register(t, name, email, "institution", category)
		_, err := env.auth.ApproveInstitution(ctx, admin, res.User.ID, model.AuditActor{})
		require.NoError(t, err)
		next, err := env.auth.Refresh(ctx, res.RefreshToken, model.AuditActor{})
		require.NoError(t, err)
		return env.claims(t, next)
	}

	f := complaintFixture{
		env:      env,
		admin:    admin,
		citizenA: env.claims(t, env.register(t, "Alice", "alice@example.com", "citizen", "")),
		citizenB: env.claims(t, env.register(t, "Bob", "bob@example.com", "citizen", "")),
		water:    approve("Water Board", "water@example.com", "Water"),
		roads:    approve("Roads Agency", "roads@example.com", "Road"),
	}

	c, err := env.complaint.Create(ctx, f.citizenA, model.CreateComplaintRequest{
		Title:       "Leaking main",
		Description: "The water main on <script>alert(1)</script>Elm St is leaking",
		Category:    "water",
		Location:    "Elm St",
	}, model.AuditActor{})
	require.NoError(t, err)
	f.complaint = c
	return f
}

func requireForbidden(t *testing.T, err error) {
	t.Helper()

	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr), "expected api error, got %v", err)
	assert.Equal(t, "FORBIDDEN", apiErr.Code)
}

func TestCreateRoutesToApprovedInstitution(t *testing.T) {
	f := newComplaintFixture(t)

	c := f.complaint
	assert.Equal(t, model.CategoryWater, c.Category)
	assert.Equal(t, f.water.UserID, c.AssignedAgency)
	assert.Equal(t, f.citizenA.UserID, c.CitizenID)
	assert.Equal(t, model.ComplaintPending, c.Status)
	assert.NotContains(t, c.Description, "<script>")
	require.Len(t, c.History, 1)
	assert.Equal(t, "Complaint created", c.History[0].Action)
}

func TestOnlyCitizensCreate(t *testing.T) {
	f := newComplaintFixture(t)

	_, err := f.env.complaint.Create(context.Background(), f.water, model.CreateComplaintRequest{
		Title: "Self filed", Description: "Institutions cannot file complaints", Category: "Water",
	}, model.AuditActor{})
	requireForbidden(t, err)
}

func TestComplaintVisibility(t *testing.T) {
	ctx := context.Background()
	f := newComplaintFixture(t)
	id := f.complaint.ID

	_, err := f.env.complaint.Get(ctx, f.citizenA, id)
	require.NoError(t, err)
	_, err = f.env.complaint.Get(ctx, f.water, id)
	require.NoError(t, err)
	_, err = f.env.complaint.Get(ctx, f.admin, id)
	require.NoError(t, err)

	_, err = f.env.complaint.Get(ctx, f.citizenB, id)
	requireForbidden(t, err)
	_, err = f.env.complaint.Get(ctx, f.roads, id)
	requireForbidden(t, err)

	_, err = f.env.complaint.Get(ctx, f.citizenA, "missing")
	assert.ErrorIs(t, err, model.ErrComplaintNotFound)

	denied := f.env.auditActions(t, AuditAccessDenied)
	assert.Len(t, denied, 2)

	list, err := f.env.complaint.List(ctx, f.citizenA, "", "")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.env.complaint.List(ctx, f.citizenB, "", "")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.env.complaint.List(ctx, f.roads, "", "")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.env.complaint.List(ctx, f.admin, "Pending", "Water")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.env.complaint.List(ctx, f.admin, "Closed", "")
	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
}

func TestPendingInstitutionIsDeniedBeforeLookup(t *testing.T) {
	ctx := context.Background()
	f := newComplaintFixture(t)
	pending := f.env.claims(t, f.env.register(t, "Power Co", "power@example.com", "institution", "Electricity"))

	_, err := f.env.complaint.Get(ctx, pending, "does-not-exist")
	requireForbidden(t, err)

	_, err = f.env.complaint.Get(ctx, f.citizenA, "does-not-exist")
	assert.ErrorIs(t, err, model.ErrComplaintNotFound)
}

func TestUpdateStatusAppendsHistory(t *testing.T) {
	ctx := context.Background()
	f := newComplaintFixture(t)
	id := f.complaint.ID

	_, err := f.env.complaint.Update(ctx, f.citizenA, id, model.UpdateComplaintRequest{Status: "Resolved"}, model.AuditActor{})
	requireForbidden(t, err)

	_, err = f.env.complaint.Update(ctx, f.roads, id, model.UpdateComplaintRequest{Status: "Resolved"}, model.AuditActor{})
	requireForbidden(t, err)

	f.env.clock.Advance(time.Minute)
	updated, err := f.env.complaint.Update(ctx, f.water, id, model.UpdateComplaintRequest{
		Status: "in progress",
		Note:   "Crew dispatched",
	}, model.AuditActor{})
	require.NoError(t, err)
	assert.Equal(t, model.ComplaintInProgress, updated.Status)
	require.Len(t, updated.History, 2)
	assert.Equal(t, "Status changed to In Progress", updated.History[1].Action)
	assert.Equal(t, "Crew dispatched", updated.History[1].Notes)
	assert.Equal(t, f.water.UserID, updated.History[1].UpdatedBy)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	updated, err = f.env.complaint.Update(ctx, f.water, id, model.UpdateComplaintRequest{Note: "Parts ordered"}, model.AuditActor{})
	require.NoError(t, err)
	require.Len(t, updated.History, 3)
	assert.Equal(t, "Note added", updated.History[2].Action)

	_, err = f.env.complaint.Update(ctx, f.water, id, model.UpdateComplaintRequest{}, model.AuditActor{})
	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)

	stored, err := f.env.complaints.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored.History, 3)
	assert.Len(t, f.env.auditActions(t, AuditComplaintUpdate), 2)
}

func TestOnlyAdminReassigns(t *testing.T) {
	ctx := context.Background()
	f := newComplaintFixture(t)
	id := f.complaint.ID

	_, err := f.env.complaint.Update(ctx, f.water, id, model.UpdateComplaintRequest{AssignedAgency: f.roads.UserID}, model.AuditActor{})
	requireForbidden(t, err)

	_, err = f.env.complaint.Update(ctx, f.admin, id, model.UpdateComplaintRequest{AssignedAgency: f.citizenB.UserID}, model.AuditActor{})
	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)

	updated, err := f.env.complaint.Update(ctx, f.admin, id, model.UpdateComplaintRequest{AssignedAgency: f.roads.UserID}, model.AuditActor{})
	require.NoError(t, err)
	assert.Equal(t, f.roads.UserID, updated.AssignedAgency)
	assert.Equal(t, "Assigned to Roads Agency", updated.History[len(updated.History)-1].Action)

	_, err = f.env.complaint.Get(ctx, f.water, id)
	requireForbidden(t, err)
	_, err = f.env.complaint.Get(ctx, f.roads, id)
	require.NoError(t, err)
}

func TestRespond(t *testing.T) {
	ctx := context.Background()
	f := newComplaintFixture(t)
	id := f.complaint.ID

	updated, err := f.env.complaint.Respond(ctx, f.water, id, model.RespondComplaintRequest{Text: "We are on it"}, model.AuditActor{})
	require.NoError(t, err)
	require.Len(t, updated.Responses, 1)
	assert.Equal(t, "institution", updated.Responses[0].From)

	updated, err = f.env.complaint.Respond(ctx, f.citizenA, id, model.RespondComplaintRequest{Text: "Thanks"}, model.AuditActor{})
	require.NoError(t, err)
	require.Len(t, updated.Responses, 2)
	assert.Equal(t, "citizen", updated.Responses[1].From)

	_, err = f.env.complaint.Respond(ctx, f.citizenB, id, model.RespondComplaintRequest{Text: "Me too"}, model.AuditActor{})
	requireForbidden(t, err)

	_, err = f.env.complaint.Respond(ctx, f.water, id, model.RespondComplaintRequest{Text: "<b></b>"}, model.AuditActor{})
	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
}
