package model

import (
	"time"
)

// SessionMeta is the metadata record stored alongside each session's
// presentation document.
type SessionMeta struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	SlideCount int       `json:"slide_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GenerateRequest is the request to generate a new presentation.
type GenerateRequest struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// TweakRequest is the request to edit an existing presentation.
type TweakRequest struct {
	ChangeRequest string   `json:"changeRequest"`
	FragmentIDs   []string `json:"fragmentIds,omitempty"`
	Model         string   `json:"model,omitempty"`
}

// ListSessionsResponse is the response for listing sessions.
type ListSessionsResponse struct {
	Sessions []SessionMeta `json:"sessions"`
	Total    int           `json:"total"`
}
