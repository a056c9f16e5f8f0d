package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vsignal/vsm/internal/signal"
)

// Assignment is one seeded signal value from an initial-state file.
type Assignment struct {
	Name  string
	Value signal.Value
}

// LoadInitialState reads an initial-state file: a YAML list of
// "name = value" lines applied to the store before the engine starts.
func LoadInitialState(path string) ([]Assignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read initial state: %w", err)
	}

	var lines []string
	if err := yaml.Unmarshal(data, &lines); err != nil {
		return nil, &LoadError{Path: path, Msg: err.Error()}
	}

	assignments := make([]Assignment, 0, len(lines))
	for _, line := range lines {
		name, valueText, ok := strings.Cut(line, "=")
		if !ok {
			return nil, &LoadError{Path: path, Msg: fmt.Sprintf("malformed assignment %q", line)}
		}
		v, err := signal.ParseLiteral(valueText)
		if err != nil {
			return nil, &LoadError{Path: path, Msg: fmt.Sprintf("assignment %q: %v", line, err)}
		}
		assignments = append(assignments, Assignment{
			Name:  NormalizeName(strings.TrimSpace(name)),
			Value: v,
		})
	}
	return assignments, nil
}
