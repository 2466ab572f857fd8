package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentDefinition describes one named agent: the instructions it runs with,
// the tools it may call, and whether its browsing calls feed reference
// extraction.
type AgentDefinition struct {
	Name               string   `yaml:"name"`
	Description        string   `yaml:"description"`
	Instructions       string   `yaml:"instructions"`
	Tools              []string `yaml:"tools"`
	ExtractsReferences bool     `yaml:"extracts_references"`
}

// agentsFile is the shape of an agents config file.
type agentsFile struct {
	Agents []AgentDefinition `yaml:"agents"`
}

// DefaultAgents are the built-in agent definitions, used when no config
// file overrides them.
func DefaultAgents() []AgentDefinition {
	return []AgentDefinition{
		{
			Name:               "research_assistant",
			Description:        "Browses the web to gather sources for a report section",
			Instructions:       "Research the given topic. Visit authoritative sources, extract the relevant content, and collect links worth citing.",
			Tools:              []string{"navigate", "extract_main_content", "extract_links", "go_back"},
			ExtractsReferences: true,
		},
		{
			Name:         "writing_assistant",
			Description:  "Rewrites and expands selected report content",
			Instructions: "Improve the selected content per the requested action. Preserve factual claims and keep existing citations intact.",
			Tools:        []string{},
		},
	}
}

// LoadAgents reads agent definitions from a YAML file, merged over the
// defaults: a file entry with a known name replaces the default, new names
// are appended. An empty path returns just the defaults.
func LoadAgents(path string) ([]AgentDefinition, error) {
	agents := DefaultAgents()
	if path == "" {
		return agents, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agents config: %w", err)
	}

	var file agentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing agents config: %w", err)
	}

	byName := make(map[string]int, len(agents))
	for i, a := range agents {
		byName[a.Name] = i
	}
	for _, a := range file.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("agents config: agent with empty name")
		}
		if i, ok := byName[a.Name]; ok {
			agents[i] = a
			continue
		}
		byName[a.Name] = len(agents)
		agents = append(agents, a)
	}

	return agents, nil
}

// FindAgent returns the definition with the given name.
func FindAgent(agents []AgentDefinition, name string) (*AgentDefinition, bool) {
	for i := range agents {
		if agents[i].Name == name {
			return &agents[i], true
		}
	}
	return nil, false
}
