package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleCitizen            Role = "citizen"
	RolePendingInstitution Role = "pending_institution"
	RoleInstitution        Role = "institution"
	RoleAdmin              Role = "admin"
)

// ParseRole returns the role for raw and false when raw names no known role.
func ParseRole(raw string) (Role, bool) {
	switch role := Role(strings.ToLower(strings.TrimSpace(raw))); role {
	case RoleCitizen, RolePendingInstitution, RoleInstitution, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

// RequiresCategory reports whether accounts with this role must carry a category.
func (r Role) RequiresCategory() bool {
	switch r {
	case RoleInstitution, RolePendingInstitution:
		return true
	case RoleCitizen, RoleAdmin:
		return false
	default:
		return false
	}
}

type Category string

const (
	CategoryRoad           Category = "Road"
	CategoryWater          Category = "Water"
	CategoryElectricity    Category = "Electricity"
	CategoryHealth         Category = "Health"
	CategorySanitation     Category = "Sanitation"
	CategoryLeadership     Category = "Leadership"
	CategoryInfrastructure Category = "Infrastructure"
	CategoryEnvironment    Category = "Environment"
	CategoryPublicServices Category = "PublicServices"
	CategoryOther          Category = "Other"
)

var Categories = []Category{
	CategoryRoad,
	CategoryWater,
	CategoryElectricity,
	CategoryHealth,
	CategorySanitation,
	CategoryLeadership,
	CategoryInfrastructure,
	CategoryEnvironment,
	CategoryPublicServices,
	CategoryOther,
}

func ParseCategory(raw string) (Category, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, c := range Categories {
		if strings.EqualFold(string(c), trimmed) {
			return c, true
		}
	}
	return "", false
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRevoked  Status = "revoked"
)

// DefaultStatus is the status a freshly registered account starts in.
func DefaultStatus(role Role) Status {
	if role == RolePendingInstitution || role == RoleInstitution {
		return StatusPending
	}
	return StatusApproved
}

type RefreshTokenRecord struct {
	TokenHash string    `json:"-" bson:"token_hash"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	Active    bool      `json:"active" bson:"active"`
}

// Usable reports whether the record can still be exchanged at now.
func (r RefreshTokenRecord) Usable(now time.Time) bool {
	return r.Active && now.Before(r.ExpiresAt)
}

type User struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Role             Role       `json:"role"`
	Category         Category   `json:"category,omitempty"`
	Status           Status     `json:"status"`
	ResetTokenHash   string     `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NormalizeEmail is the canonical form under which emails are stored and compared.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Public strips everything that must never leave the server.
func (u User) Public() AuthUser {
	return AuthUser{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		Category: u.Category,
		Status:   u.Status,
	}
}

type AuthClaims struct {
	UserID   string    `json:"sub"`
	Role     Role      `json:"role"`
	Category Category  `json:"category,omitempty"`
	Type     string    `json:"typ"`
	TokenID  string    `json:"jti"`
	IssuedAt time.Time `json:"-"`
	Expiry   time.Time `json:"-"`
}

type AuthUser struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Role     Role     `json:"role"`
	Category Category `json:"category,omitempty"`
	Status   Status   `json:"status"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	AccessTTL    int64  `json:"accessTTL"`
	RefreshTTL   int64  `json:"refreshTTL"`
}

type AuthResult struct {
	TokenPair
	Role     Role     `json:"role"`
	Category Category `json:"category,omitempty"`
	User     AuthUser `json:"user"`
}

type AccountStatus struct {
	Role     Role     `json:"role"`
	Status   Status   `json:"status"`
	Category Category `json:"category,omitempty"`
}
