package model

// UserMode is the marketplace role the user is browsing as.
type UserMode string

const (
	UserModeBuyer  UserMode = "buyer"
	UserModeSeller UserMode = "seller"
)

// Valid reports whether m is a known user mode.
func (m UserMode) Valid() bool {
	return m == UserModeBuyer || m == UserModeSeller
}

// Identity is the authenticated user.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Credentials are the opaque tokens issued by the backend.
type Credentials struct {
	AuthToken    string `json:"auth_token"`
	RefreshToken string `json:"refresh_token"`
}
