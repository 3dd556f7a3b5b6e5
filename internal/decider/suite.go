package decider

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

// Suite is a test file: the tests it holds and the scripted decisions for
// their steps.
type Suite struct {
	Path      string           `yaml:"-"`
	URL       string           `yaml:"url"`
	Tests     []Test           `yaml:"tests"`
	Decisions map[string]Entry `yaml:"decisions"`
}

// Test is one multi-line test body.
type Test struct {
	Name  string `yaml:"name"`
	Steps string `yaml:"steps"`
}

// Entry scripts the decision for one step text.
type Entry struct {
	// Action is navigate, click, double, right, hover, or a form operation
	// (fill, type, select, check, uncheck, clear, press).
	Action string `yaml:"action"`
	URL    string `yaml:"url,omitempty"`
	// Target is a CSS selector for the element the step acts on.
	Target string `yaml:"target,omitempty"`
	Value  string `yaml:"value,omitempty"`
}

// LoadSuite reads and validates a suite file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	suite, err := ParseSuite(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	suite.Path = path
	return suite, nil
}

// ParseSuite decodes and validates suite YAML.
func ParseSuite(data []byte) (*Suite, error) {
	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}
	if len(suite.Tests) == 0 {
		return nil, fmt.Errorf("invalid suite: no tests")
	}
	for i, t := range suite.Tests {
		if strings.TrimSpace(t.Steps) == "" {
			return nil, fmt.Errorf("invalid suite: test %d (%q) has no steps", i, t.Name)
		}
		if t.Name == "" {
			suite.Tests[i].Name = fmt.Sprintf("test %d", i+1)
		}
	}
	normalized := make(map[string]Entry, len(suite.Decisions))
	for step, entry := range suite.Decisions {
		if _, err := entry.Decision(); err != nil {
			return nil, fmt.Errorf("invalid suite: decision for %q: %w", step, err)
		}
		normalized[strings.TrimSpace(step)] = entry
	}
	suite.Decisions = normalized
	return &suite, nil
}

// Decision converts the entry into a typed decision.
func (e Entry) Decision() (*Decision, error) {
	action := strings.ToLower(strings.TrimSpace(e.Action))
	d := &Decision{}
	switch action {
	case "navigate", "navigation", "goto":
		if e.URL == "" {
			return nil, fmt.Errorf("navigate needs a url")
		}
		d.Kind = schemas.ActionNavigation
		d.Navigation = schemas.NavigationDetails{URL: e.URL}
		return d, nil
	case "click", "double", "right", "hover":
		d.Kind = schemas.ActionClick
		d.Click = schemas.ClickDetails{ClickType: schemas.ClickType(action)}
	case "fill", "type", "select", "check", "uncheck", "clear", "press":
		d.Kind = schemas.ActionFormUpdate
		d.Form = schemas.FormDetails{Operation: schemas.FormOperation(action), Value: e.Value}
	default:
		return nil, fmt.Errorf("unknown action %q", e.Action)
	}
	if strings.TrimSpace(e.Target) == "" {
		return nil, fmt.Errorf("%s needs a target", action)
	}
	locator := selector.CSS(e.Target)
	d.Locator = &locator
	return d, nil
}
