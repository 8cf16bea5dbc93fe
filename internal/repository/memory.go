package repository

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"citizen-voice/internal/model"
)

type memoryToken struct {
	userID string
	record model.RefreshTokenRecord
}

// MemoryUserStore is the credential store used with DATABASE_DRIVER=memory and in tests.
type MemoryUserStore struct {
	mu      sync.Mutex
	users   map[string]model.User
	byEmail map[string]string
	tokens  map[string]memoryToken
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:   make(map[string]model.User),
		byEmail: make(map[string]string),
		tokens:  make(map[string]memoryToken),
	}
}

func (s *MemoryUserStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *MemoryUserStore) FindByResetTokenHash(_ context.Context, hash string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(hash) == "" {
		return model.User{}, model.ErrUserNotFound
	}
	for _, u := range s.users {
		if u.ResetTokenHash == hash {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *MemoryUserStore) Create(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = model.NormalizeEmail(u.Email)
	if _, taken := s.byEmail[u.Email]; taken {
		return model.User{}, model.ErrDuplicateEmail
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

func (s *MemoryUserStore) Save(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[u.ID]
	if !ok {
		return model.ErrUserNotFound
	}

	u.Email = model.NormalizeEmail(u.Email)
	if u.Email != current.Email {
		if _, taken := s.byEmail[u.Email]; taken {
			return model.ErrDuplicateEmail
		}
		delete(s.byEmail, current.Email)
		s.byEmail[u.Email] = u.ID
	}

	u.CreatedAt = current.CreatedAt
	s.users[u.ID] = u
	return nil
}

func (s *MemoryUserStore) ListInstitutions(_ context.Context, status model.Status) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.User, 0)
	for _, u := range s.users {
		if u.Role.RequiresCategory() && u.Status == status {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryUserStore) FindApprovedInstitution(_ context.Context, category model.Category) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *model.User
	for _, u := range s.users {
		if u.Role != model.RoleInstitution || u.Status != model.StatusApproved || u.Category != category {
			continue
		}
		if found == nil || u.CreatedAt.Before(found.CreatedAt) {
			candidate := u
			found = &candidate
		}
	}
	if found == nil {
		return model.User{}, model.ErrUserNotFound
	}
	return *found, nil
}

func (s *MemoryUserStore) AppendRefreshToken(_ context.Context, userID string, record model.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return model.ErrUserNotFound
	}
	s.tokens[record.TokenHash] = memoryToken{userID: userID, record: record}
	return nil
}

func (s *MemoryUserStore) ConsumeRefreshToken(_ context.Context, tokenHash string, now time.Time, replacement model.RefreshTokenRecord) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[tokenHash]
	if !ok || !now.Before(entry.record.ExpiresAt) {
		return model.User{}, model.ErrInvalidRefreshToken
	}
	if !entry.record.Active {
		return model.User{}, &model.RefreshReuseError{UserID: entry.userID}
	}

	u, ok := s.users[entry.userID]
	if !ok {
		return model.User{}, model.ErrInvalidRefreshToken
	}

	entry.record.Active = false
	s.tokens[tokenHash] = entry
	s.tokens[replacement.TokenHash] = memoryToken{userID: entry.userID, record: replacement}
	return u, nil
}

func (s *MemoryUserStore) DeactivateRefreshTokens(_ context.Context, userID string, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, entry := range s.tokens {
		if entry.userID != userID || (tokenHash != "" && hash != tokenHash) {
			continue
		}
		entry.record.Active = false
		s.tokens[hash] = entry
	}
	return nil
}

func (s *MemoryUserStore) PruneExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for hash, entry := range s.tokens {
		if !now.Before(entry.record.ExpiresAt) {
			delete(s.tokens, hash)
			pruned++
		}
	}
	return pruned, nil
}

// ActiveRefreshTokens counts the user's usable records at now.
func (s *MemoryUserStore) ActiveRefreshTokens(userID string, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, entry := range s.tokens {
		if entry.userID == userID && entry.record.Usable(now) {
			n++
		}
	}
	return n
}

type MemoryComplaintStore struct {
	mu         sync.Mutex
	complaints map[string]model.Complaint
}

func NewMemoryComplaintStore() *MemoryComplaintStore {
	return &MemoryComplaintStore{complaints: make(map[string]model.Complaint)}
}

func cloneComplaint(c model.Complaint) model.Complaint {
	c.Responses = slices.Clone(c.Responses)
	c.History = slices.Clone(c.History)
	if c.Responses == nil {
		c.Responses = []model.ComplaintResponse{}
	}
	if c.History == nil {
		c.History = []model.ComplaintHistory{}
	}
	return c
}

func (s *MemoryComplaintStore) Create(_ context.Context, c model.Complaint) (model.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c = cloneComplaint(c)
	s.complaints[c.ID] = c
	return cloneComplaint(c), nil
}

func (s *MemoryComplaintStore) FindByID(_ context.Context, id string) (model.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.complaints[id]
	if !ok {
		return model.Complaint{}, model.ErrComplaintNotFound
	}
	return cloneComplaint(c), nil
}

func (s *MemoryComplaintStore) List(_ context.Context, filter model.ComplaintFilter) ([]model.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Complaint, 0)
	for _, c := range s.complaints {
		if filter.CitizenID != "" && c.CitizenID != filter.CitizenID {
			continue
		}
		if filter.AssignedAgency != "" && c.AssignedAgency != filter.AssignedAgency {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Category != "" && c.Category != filter.Category {
			continue
		}
		out = append(out, cloneComplaint(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryComplaintStore) Save(_ context.Context, c model.Complaint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.complaints[c.ID]
	if !ok {
		return model.ErrComplaintNotFound
	}

	current.AssignedAgency = c.AssignedAgency
	current.Status = c.Status
	current.Responses = slices.Clone(c.Responses)
	current.History = slices.Clone(c.History)
	current.UpdatedAt = c.UpdatedAt
	s.complaints[c.ID] = current
	return nil
}

func (s *MemoryComplaintStore) AssignUnassigned(_ context.Context, category model.Category, agencyID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, c := range s.complaints {
		if c.Category == category && c.AssignedAgency == "" {
			c.AssignedAgency = agencyID
			c.UpdatedAt = time.Now().UTC()
			s.complaints[id] = c
			n++
		}
	}
	return n, nil
}

type MemoryAuditStore struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) Log(_ context.Context, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryAuditStore) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, hasFrom := parseAuditBound(query.From)
	to, hasTo := parseAuditBound(query.To)

	matched := make([]model.AuditEntry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if query.Action != "" && !strings.EqualFold(e.Action, strings.TrimSpace(query.Action)) {
			continue
		}
		if query.ActorID != "" && e.Actor.UserID != strings.TrimSpace(query.ActorID) {
			continue
		}
		if query.Status != "" && !strings.EqualFold(e.Status, strings.TrimSpace(query.Status)) {
			continue
		}
		if hasFrom || hasTo {
			at, err := time.Parse(time.RFC3339Nano, e.OccurredAt)
			if err != nil || (hasFrom && at.Before(from)) || (hasTo && at.After(to)) {
				continue
			}
		}
		matched = append(matched, e)
	}

	meta := model.NewMeta(query.Page, query.Limit, len(matched))
	start := min(meta.Offset(), len(matched))
	end := min(start+meta.Limit, len(matched))
	return matched[start:end], meta, nil
}

func parseAuditBound(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t, err == nil
}
