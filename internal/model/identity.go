package model

import "github.com/google/uuid"

// Identity is attached to every order and session for audit and per-user history.
type Identity struct {
	SessionID  string     `json:"session_id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	UserRoleID string     `json:"user_role_id,omitempty"`
}

// Actor is the label written on tickets and audit entries.
func (i Identity) Actor() string {
	if i.UserID != nil {
		return i.UserID.String()
	}
	return i.SessionID
}
