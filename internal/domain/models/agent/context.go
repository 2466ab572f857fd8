package agent

import (
	"time"
)

// Context statuses. Transitions are monotonic forward:
// pending -> processing -> completed | failed. A context never regresses.
const (
	ContextStatusPending    = "pending"
	ContextStatusProcessing = "processing"
	ContextStatusCompleted  = "completed"
	ContextStatusFailed     = "failed"
)

// ContextStatuses is the set of valid context statuses.
var ContextStatuses = []string{
	ContextStatusPending,
	ContextStatusProcessing,
	ContextStatusCompleted,
	ContextStatusFailed,
}

// contextStatusRank orders statuses along the lifecycle. Terminal states share
// the highest rank so completed/failed can never replace each other.
var contextStatusRank = map[string]int{
	ContextStatusPending:    0,
	ContextStatusProcessing: 1,
	ContextStatusCompleted:  2,
	ContextStatusFailed:     2,
}

// ContextStatusesBefore returns the statuses a context may currently hold for a
// transition to the given status to be valid. Used by repositories to guard
// status updates in the WHERE clause.
func ContextStatusesBefore(to string) []string {
	rank, ok := contextStatusRank[to]
	if !ok {
		return nil
	}
	var from []string
	for _, s := range ContextStatuses {
		if contextStatusRank[s] < rank {
			from = append(from, s)
		}
	}
	return from
}

// ContextableRef is an opaque reference to the domain object a context or
// fragment belongs to (a page, a report section, ...). The engine stores and
// returns it but never dereferences or joins against it.
type ContextableRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Context is the aggregate root for one agent invocation: the conversation
// messages, generation results, recorded tool calls, extracted references and
// content fragments all hang off a context and are destroyed with it.
type Context struct {
	ID           string          `json:"id" db:"id"`
	AgentName    string          `json:"agent_name" db:"agent_name"`
	ActionName   string          `json:"action_name,omitempty" db:"action_name"`
	Instructions string          `json:"instructions,omitempty" db:"instructions"`
	Options      map[string]any  `json:"options,omitempty" db:"options"`
	Status       string          `json:"status" db:"status"`
	Contextable  *ContextableRef `json:"contextable,omitempty"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the context has reached a terminal status.
func (c *Context) Terminal() bool {
	return c.Status == ContextStatusCompleted || c.Status == ContextStatusFailed
}
