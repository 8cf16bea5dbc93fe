//go:build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citizen-voice/internal/database"
	"citizen-voice/internal/model"
)

// credentialStore is the surface shared by every user repository.
type credentialStore interface {
	Create(ctx context.Context, u model.User) (model.User, error)
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByResetTokenHash(ctx context.Context, hash string) (model.User, error)
	Save(ctx context.Context, u model.User) error
	ListInstitutions(ctx context.Context, status model.Status) ([]model.User, error)
	AppendRefreshToken(ctx context.Context, userID string, record model.RefreshTokenRecord) error
	ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time, replacement model.RefreshTokenRecord) (model.User, error)
	DeactivateRefreshTokens(ctx context.Context, userID string, tokenHash string) error
	PruneExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type complaintStore interface {
	Create(ctx context.Context, c model.Complaint) (model.Complaint, error)
	FindByID(ctx context.Context, id string) (model.Complaint, error)
	List(ctx context.Context, filter model.ComplaintFilter) ([]model.Complaint, error)
	Save(ctx context.Context, c model.Complaint) error
	AssignUnassigned(ctx context.Context, category model.Category, agencyID string) (int64, error)
}

type auditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

type backend struct {
	users      credentialStore
	complaints complaintStore
	audit      auditStore
}

func postgresBackend(t *testing.T) backend {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, database.PostgresOptions{URL: url, MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	return backend{
		users:      NewUserRepository(db.Pool),
		complaints: NewComplaintRepository(db.Pool),
		audit:      NewAuditRepository(db.Pool),
	}
}

func mongoBackend(t *testing.T) backend {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	m, err := database.NewMongo(ctx, uri, "citizen_voice_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.DB.Drop(context.Background())
		m.Close()
	})

	users, err := NewMongoUserRepository(ctx, m.DB)
	require.NoError(t, err)
	complaints, err := NewMongoComplaintRepository(ctx, m.DB)
	require.NoError(t, err)
	audit, err := NewMongoAuditRepository(ctx, m.DB)
	require.NoError(t, err)

	return backend{users: users, complaints: complaints, audit: audit}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b backend)) {
	t.Run("postgres", func(t *testing.T) { fn(t, postgresBackend(t)) })
	t.Run("mongo", func(t *testing.T) { fn(t, mongoBackend(t)) })
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@example.com", prefix, uuid.NewString()[:8])
}

func TestIntegrationUserEmailUniqueness(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)
		email := uniqueEmail("Alice")

		alice, err := b.users.Create(ctx, newUser(email, model.RoleCitizen, "", now))
		require.NoError(t, err)
		assert.Equal(t, model.NormalizeEmail(email), alice.Email)

		_, err = b.users.Create(ctx, newUser(email, model.RoleCitizen, "", now))
		assert.ErrorIs(t, err, model.ErrDuplicateEmail)

		bob, err := b.users.Create(ctx, newUser(uniqueEmail("bob"), model.RoleCitizen, "", now))
		require.NoError(t, err)
		bob.Email = alice.Email
		assert.ErrorIs(t, b.users.Save(ctx, bob), model.ErrDuplicateEmail)

		found, err := b.users.FindByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.Email, found.Email)
	})
}

func TestIntegrationResetTokenLookup(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		u, err := b.users.Create(ctx, newUser(uniqueEmail("reset"), model.RoleCitizen, "", now))
		require.NoError(t, err)

		hash := uuid.NewString()
		expiry := now.Add(time.Hour)
		u.ResetTokenHash = hash
		u.ResetTokenExpiry = &expiry
		require.NoError(t, b.users.Save(ctx, u))

		found, err := b.users.FindByResetTokenHash(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, u.ID, found.ID)
		require.NotNil(t, found.ResetTokenExpiry)
		assert.WithinDuration(t, expiry, *found.ResetTokenExpiry, time.Millisecond)

		_, err = b.users.FindByResetTokenHash(ctx, "")
		assert.ErrorIs(t, err, model.ErrUserNotFound)
	})
}

func TestIntegrationRefreshRotation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)
		record := func(hash string) model.RefreshTokenRecord {
			return model.RefreshTokenRecord{TokenHash: hash, CreatedAt: now, ExpiresAt: now.Add(time.Hour), Active: true}
		}

		u, err := b.users.Create(ctx, newUser(uniqueEmail("rotate"), model.RoleCitizen, "", now))
		require.NoError(t, err)

		first, second := uuid.NewString(), uuid.NewString()
		require.NoError(t, b.users.AppendRefreshToken(ctx, u.ID, record(first)))

		owner, err := b.users.ConsumeRefreshToken(ctx, first, now, record(second))
		require.NoError(t, err)
		assert.Equal(t, u.ID, owner.ID)

		_, err = b.users.ConsumeRefreshToken(ctx, first, now, record(uuid.NewString()))
		var reuse *model.RefreshReuseError
		require.True(t, errors.As(err, &reuse))
		assert.Equal(t, u.ID, reuse.UserID)

		_, err = b.users.ConsumeRefreshToken(ctx, uuid.NewString(), now, record(uuid.NewString()))
		assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
		assert.False(t, errors.As(err, &reuse))

		require.NoError(t, b.users.DeactivateRefreshTokens(ctx, u.ID, ""))
		_, err = b.users.ConsumeRefreshToken(ctx, second, now, record(uuid.NewString()))
		assert.ErrorIs(t, err, model.ErrRefreshTokenReused)

		pruned, err := b.users.PruneExpiredRefreshTokens(ctx, now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Positive(t, pruned)
	})
}

func TestIntegrationConcurrentConsumeHasOneWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		u, err := b.users.Create(ctx, newUser(uniqueEmail("race"), model.RoleCitizen, "", now))
		require.NoError(t, err)
		shared := uuid.NewString()
		require.NoError(t, b.users.AppendRefreshToken(ctx, u.ID,
			model.RefreshTokenRecord{TokenHash: shared, CreatedAt: now, ExpiresAt: now.Add(time.Hour), Active: true}))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				replacement := model.RefreshTokenRecord{
					TokenHash: uuid.NewString(), CreatedAt: now, ExpiresAt: now.Add(time.Hour), Active: true,
				}
				if _, err := b.users.ConsumeRefreshToken(ctx, shared, now, replacement); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
	})
}

func TestIntegrationComplaintAssignment(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		citizen, err := b.users.Create(ctx, newUser(uniqueEmail("citizen"), model.RoleCitizen, "", now))
		require.NoError(t, err)
		agency, err := b.users.Create(ctx, newUser(uniqueEmail("agency"), model.RolePendingInstitution, model.CategorySanitation, now))
		require.NoError(t, err)

		pending, err := b.users.ListInstitutions(ctx, model.StatusPending)
		require.NoError(t, err)
		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			ids = append(ids, p.ID)
		}
		assert.Contains(t, ids, agency.ID)

		c, err := b.complaints.Create(ctx, model.Complaint{
			Title:       "Overflowing bins",
			Description: "Bins on Main St have not been emptied for two weeks",
			Category:    model.CategorySanitation,
			CitizenID:   citizen.ID,
			Status:      model.ComplaintPending,
			History:     []model.ComplaintHistory{{Action: "created", UpdatedBy: citizen.ID, Timestamp: now}},
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		require.NoError(t, err)
		require.NotEmpty(t, c.ID)

		n, err := b.complaints.AssignUnassigned(ctx, model.CategorySanitation, agency.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		assigned, err := b.complaints.List(ctx, model.ComplaintFilter{AssignedAgency: agency.ID})
		require.NoError(t, err)
		require.Len(t, assigned, 1)
		assert.Equal(t, c.ID, assigned[0].ID)

		c = assigned[0]
		c.Status = model.ComplaintInProgress
		c.Responses = append(c.Responses, model.ComplaintResponse{Text: "Crew dispatched", From: agency.ID, Date: now})
		c.History = append(c.History, model.ComplaintHistory{Action: "status_update", UpdatedBy: agency.ID, Timestamp: now})
		require.NoError(t, b.complaints.Save(ctx, c))

		stored, err := b.complaints.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ComplaintInProgress, stored.Status)
		assert.Len(t, stored.Responses, 1)
		assert.Len(t, stored.History, 2)

		own, err := b.complaints.List(ctx, model.ComplaintFilter{CitizenID: citizen.ID, Status: model.ComplaintInProgress})
		require.NoError(t, err)
		assert.Len(t, own, 1)
	})
}

func TestIntegrationAuditQuery(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		actorID := uuid.NewString()
		now := time.Now().UTC()

		for i := range 3 {
			require.NoError(t, b.audit.Log(ctx, model.AuditEntry{
				Action:     "auth.login",
				OccurredAt: now.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
				Actor:      model.AuditActor{UserID: actorID, IP: "10.0.0.1"},
				Status:     "success",
			}))
		}
		require.NoError(t, b.audit.Log(ctx, model.AuditEntry{
			Action:     "auth.login",
			OccurredAt: now.Format(time.RFC3339),
			Actor:      model.AuditActor{UserID: actorID, IP: "10.0.0.1"},
			Status:     "failure",
			Error:      "invalid credentials",
		}))

		entries, meta, err := b.audit.Query(ctx, model.AuditQuery{ActorID: actorID, Status: "success", Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
		assert.Equal(t, 3, meta.Total)
	})
}
