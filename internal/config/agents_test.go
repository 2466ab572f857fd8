package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultAgents(t *testing.T) {
	agents := DefaultAgents()

	research, ok := FindAgent(agents, "research_assistant")
	if !ok {
		t.Fatal("research_assistant should be a default agent")
	}
	if !research.ExtractsReferences {
		t.Error("research_assistant should extract references")
	}
	if len(research.Tools) == 0 {
		t.Error("research_assistant should have browsing tools")
	}

	if _, ok := FindAgent(agents, "writing_assistant"); !ok {
		t.Error("writing_assistant should be a default agent")
	}
}

func TestLoadAgents_EmptyPath(t *testing.T) {
	agents, err := LoadAgents("")
	if err != nil {
		t.Fatalf("LoadAgents: %v", err)
	}
	if len(agents) != len(DefaultAgents()) {
		t.Errorf("empty path should return the defaults, got %d agents", len(agents))
	}
}

func TestLoadAgents_MergeOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	content := `agents:
  - name: research_assistant
    description: Custom researcher
    instructions: Custom instructions
    tools: [navigate]
    extracts_references: false
  - name: fact_checker
    description: Verifies claims
    instructions: Check each claim against its cited source.
    tools: [navigate, extract_main_content]
    extracts_references: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	agents, err := LoadAgents(path)
	if err != nil {
		t.Fatalf("LoadAgents: %v", err)
	}

	research, ok := FindAgent(agents, "research_assistant")
	if !ok {
		t.Fatal("research_assistant missing after merge")
	}
	if research.Description != "Custom researcher" {
		t.Errorf("file entry should replace the default, got %q", research.Description)
	}
	if research.ExtractsReferences {
		t.Error("override should turn extraction off")
	}

	checker, ok := FindAgent(agents, "fact_checker")
	if !ok {
		t.Fatal("new agent from file should be appended")
	}
	if len(checker.Tools) != 2 {
		t.Errorf("unexpected tools %v", checker.Tools)
	}

	if _, ok := FindAgent(agents, "writing_assistant"); !ok {
		t.Error("untouched defaults should survive the merge")
	}
}

func TestLoadAgents_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	if err := os.WriteFile(path, []byte("agents: [{name: ''}]"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadAgents(path); err == nil {
		t.Error("empty agent name should be rejected")
	}

	if _, err := LoadAgents(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file should be an error")
	}
}

func TestGetTablePrefix(t *testing.T) {
	t.Setenv("TABLE_PREFIX", "")

	tests := []struct {
		env      string
		expected string
	}{
		{"prod", "prod_"},
		{"test", "test_"},
		{"dev", "dev_"},
		{"anything-else", "dev_"},
	}
	for _, tt := range tests {
		if got := getTablePrefix(tt.env); got != tt.expected {
			t.Errorf("getTablePrefix(%q) = %q, want %q", tt.env, got, tt.expected)
		}
	}

	t.Setenv("TABLE_PREFIX", "custom_")
	if got := getTablePrefix("prod"); got != "custom_" {
		t.Errorf("TABLE_PREFIX override ignored, got %q", got)
	}
}
