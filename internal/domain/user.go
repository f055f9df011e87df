package domain

// User is the account a session is bound to. Accounts live in the identity
// provider; only the id and email are mirrored here.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}
