package models

// User is the public profile of an account. Owners, collaborators and
// timeline actors are all carried as User references.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Bio      string `json:"bio,omitempty"`
}

// ActiveUser is a presence record for someone currently viewing a room.
type ActiveUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}
