package dto

// LoginDTO is used for incoming login requests
type LoginDTO struct {
	Username string `json:"username" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterDTO is used for incoming registration requests
type RegisterDTO struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// SessionResponseDTO describes the authenticated user after login or registration.
type SessionResponseDTO struct {
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
	ExpiresAt int64    `json:"expires_at"`
}

// ProfileResponseDTO is returned by the profile endpoint
type ProfileResponseDTO struct {
	Username string   `json:"username"`
	Balance  float64  `json:"balance"`
	Roles    []string `json:"roles"`
}
