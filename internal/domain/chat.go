// Package domain contains core domain types for the Acharya tutoring backend.
package domain

import "time"

// Role values for conversation turns, matching the generative backend's
// expected content roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is a single entry in a session's conversation history.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ChatRecord is one persisted prompt, appended under a subject's history.
type ChatRecord struct {
	SubjectID string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}
