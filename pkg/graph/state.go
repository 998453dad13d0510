package graph

import "arc-framework/sherlock/pkg/models"

// State is the ephemeral pipeline state; one fresh value per request.
// Node code mutates only its own State — nothing shared.
type State struct {
	// Messages is the ordered LLM prompt; element 0 is the inbound human turn.
	Messages []models.Message

	// UserID selects the memory partition.
	UserID string

	// Context holds retrieved history snippets, best match first.
	Context []string

	// FinalResponse is the reply text; valid only when FinalSet is true.
	FinalResponse string
	FinalSet      bool

	// ErrorCount counts failed attempts; never exceeds MaxRetries.
	ErrorCount int

	// IsError is true when the error handler exhausted retries. The
	// machine guarantees IsError implies FinalSet (the apology).
	IsError bool
}

// newState builds the initial state for one invocation.
func newState(userID, text string) *State {
	return &State{
		Messages: []models.Message{models.HumanMessage(text)},
		UserID:   userID,
	}
}
