package agent

import (
	"reflect"
	"testing"
)

func TestContextStatusesBefore(t *testing.T) {
	tests := []struct {
		to       string
		expected []string
	}{
		{ContextStatusProcessing, []string{ContextStatusPending}},
		{ContextStatusCompleted, []string{ContextStatusPending, ContextStatusProcessing}},
		{ContextStatusFailed, []string{ContextStatusPending, ContextStatusProcessing}},
		{ContextStatusPending, nil},
		{"bogus", nil},
	}

	for _, tt := range tests {
		t.Run(tt.to, func(t *testing.T) {
			got := ContextStatusesBefore(tt.to)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ContextStatusesBefore(%q) = %v, want %v", tt.to, got, tt.expected)
			}
		})
	}
}

func TestContext_Terminal(t *testing.T) {
	for _, status := range []string{ContextStatusPending, ContextStatusProcessing} {
		c := &Context{Status: status}
		if c.Terminal() {
			t.Errorf("%s context should not be terminal", status)
		}
	}
	for _, status := range []string{ContextStatusCompleted, ContextStatusFailed} {
		c := &Context{Status: status}
		if !c.Terminal() {
			t.Errorf("%s context should be terminal", status)
		}
	}
}

func TestMessage_ToPromptMessage(t *testing.T) {
	m := &Message{Role: RoleUser, Content: "hello"}
	got := m.ToPromptMessage()
	expected := map[string]any{"role": "user", "content": "hello"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("ToPromptMessage() = %v, want %v", got, expected)
	}

	named := &Message{Role: RoleAssistant, Content: "hi", Name: "researcher"}
	if got := named.ToPromptMessage(); got["name"] != "researcher" {
		t.Errorf("named message should carry its name, got %v", got)
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleSystem, RoleUser, RoleAssistant} {
		if !ValidRole(role) {
			t.Errorf("%s should be a valid role", role)
		}
	}
	if ValidRole("tool") {
		t.Error("tool is not a valid role")
	}
}
