// Package models contains the shared domain types for the Sherlock service.
package models

// Role identifies the author of a conversation message.
type Role string

// Conversation roles. The wire and storage representation is the lowercase
// string, shared between the vector payload and the SQL row.
const (
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

// Message is a single role-tagged message in an LLM prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// HumanMessage builds a message authored by the user.
func HumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

// AIMessage builds a message authored by the model.
func AIMessage(content string) Message {
	return Message{Role: RoleAI, Content: content}
}
