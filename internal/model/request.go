package model

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100,personname"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128,strongpassword"`
	Role     string `json:"role" validate:"omitempty,oneof=citizen pending_institution institution admin"`
	Category string `json:"category" validate:"omitempty,category"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=128"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type UpdateProfileRequest struct {
	Name  string `json:"name" validate:"omitempty,min=2,max=100,personname"`
	Email string `json:"email" validate:"omitempty,email,max=255"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required,hexadecimal,len=64"`
	Password string `json:"password" validate:"required,min=8,max=128,strongpassword"`
}

type CreateComplaintRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"required,min=10,max=5000"`
	Category    string `json:"category" validate:"required,category"`
	Location    string `json:"location" validate:"max=200"`
}

type UpdateComplaintRequest struct {
	Status         string `json:"status" validate:"omitempty,complaintstatus"`
	Note           string `json:"note" validate:"max=1000"`
	AssignedAgency string `json:"assignedAgency" validate:"omitempty,max=64"`
}

type RespondComplaintRequest struct {
	Text string `json:"text" validate:"required,min=1,max=2000"`
}

type CSRFTokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}

type PendingInstitutionList struct {
	Users []AuthUser `json:"users"`
}
