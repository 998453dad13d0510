package api

import "strings"

// ChatRequest is the HTTP request body for POST /chat.
type ChatRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Validate reports the first problem with the request, or "".
func (r ChatRequest) Validate() string {
	if strings.TrimSpace(r.UserID) == "" {
		return "user_id is required"
	}
	if strings.TrimSpace(r.Text) == "" {
		return "text must be non-empty"
	}
	return ""
}
