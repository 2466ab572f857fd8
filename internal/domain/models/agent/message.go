package agent

import "time"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageRoles is the set of valid message roles.
var MessageRoles = []string{RoleSystem, RoleUser, RoleAssistant}

// ValidRole reports whether role is one of the fixed role set.
func ValidRole(role string) bool {
	for _, r := range MessageRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Message is a single conversation message within a context. Position is a
// monotonically increasing integer unique within the context, assigned at
// creation time and never reused even after deletion.
type Message struct {
	ID        string    `json:"id" db:"id"`
	ContextID string    `json:"context_id" db:"context_id"`
	Role      string    `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	Name      string    `json:"name,omitempty" db:"name"`
	Position  int       `json:"position" db:"position"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ToPromptMessage returns the message in the shape prompt construction expects.
func (m *Message) ToPromptMessage() map[string]any {
	out := map[string]any{
		"role":    m.Role,
		"content": m.Content,
	}
	if m.Name != "" {
		out["name"] = m.Name
	}
	return out
}
