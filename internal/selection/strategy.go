// Package selection picks a token-bounded, prioritized subset of project
// documents for a given task type. Each task type binds to a Strategy that
// names which document categories are required, which are merely welcome, and
// how heavily each weighs against the token budget.
package selection

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/draftd/internal/document"
)

// Strategy configures document selection for one task type.
type Strategy struct {
	TaskType           string                        `koanf:"task_type"`
	MaxTokens          int                           `koanf:"max_tokens"`
	RequiredCategories []document.Category           `koanf:"required_categories"`
	OptionalCategories []document.Category           `koanf:"optional_categories"`
	PriorityWeights    map[document.Category]float64 `koanf:"priority_weights"`
}

// Validate checks the strategy for configuration errors.
func (s Strategy) Validate() error {
	if s.TaskType == "" {
		return fmt.Errorf("strategy task_type is required")
	}
	if s.MaxTokens <= 0 {
		return fmt.Errorf("strategy %q: max_tokens must be > 0, got %d", s.TaskType, s.MaxTokens)
	}
	if len(s.RequiredCategories) == 0 && len(s.OptionalCategories) == 0 {
		return fmt.Errorf("strategy %q: at least one category must be listed", s.TaskType)
	}

	known := make(map[document.Category]bool)
	for _, c := range document.AllCategories() {
		known[c] = true
	}
	for _, c := range s.RequiredCategories {
		if !known[c] {
			return fmt.Errorf("strategy %q: unknown required category %q", s.TaskType, c)
		}
	}
	for _, c := range s.OptionalCategories {
		if !known[c] {
			return fmt.Errorf("strategy %q: unknown optional category %q", s.TaskType, c)
		}
	}
	for cat, w := range s.PriorityWeights {
		if !known[cat] {
			return fmt.Errorf("strategy %q: unknown weighted category %q", s.TaskType, cat)
		}
		if w <= 0 {
			return fmt.Errorf("strategy %q: weight for %s must be > 0, got %v", s.TaskType, cat, w)
		}
	}
	return nil
}

func (s Strategy) isRequired(cat document.Category) bool {
	for _, c := range s.RequiredCategories {
		if c == cat {
			return true
		}
	}
	return false
}

func (s Strategy) isEligible(cat document.Category) bool {
	if s.isRequired(cat) {
		return true
	}
	for _, c := range s.OptionalCategories {
		if c == cat {
			return true
		}
	}
	return false
}

func (s Strategy) weight(cat document.Category) float64 {
	if w, ok := s.PriorityWeights[cat]; ok {
		return w
	}
	return 1.0
}

// UnknownTaskTypeError reports a selection request for an unregistered task type.
type UnknownTaskTypeError struct {
	TaskType string
}

func (e *UnknownTaskTypeError) Error() string {
	return fmt.Sprintf("no selection strategy registered for task type %q", e.TaskType)
}

// Registry holds one Strategy per supported task type.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds or replaces the strategy for its task type.
func (r *Registry) Register(s Strategy) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.strategies[s.TaskType] = s
	return nil
}

// Get returns the strategy for taskType.
func (r *Registry) Get(taskType string) (Strategy, error) {
	s, ok := r.strategies[taskType]
	if !ok {
		return Strategy{}, &UnknownTaskTypeError{TaskType: taskType}
	}
	return s, nil
}

// TaskTypes returns the registered task types in sorted order.
func (r *Registry) TaskTypes() []string {
	types := make([]string, 0, len(r.strategies))
	for t := range r.strategies {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultRegistry returns a registry pre-loaded with the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range DefaultStrategies() {
		// Built-in strategies are statically valid.
		_ = r.Register(s)
	}
	return r
}

// DefaultStrategies returns the built-in per-task-type strategies.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			TaskType:           "marketing-copy",
			MaxTokens:          6000,
			RequiredCategories: []document.Category{document.CategoryReadme},
			OptionalCategories: []document.Category{
				document.CategoryGuide, document.CategoryChangelog, document.CategoryExample,
			},
			PriorityWeights: map[document.Category]float64{
				document.CategoryReadme:    3.0,
				document.CategoryGuide:     2.0,
				document.CategoryChangelog: 1.5,
				document.CategoryExample:   1.0,
			},
		},
		{
			TaskType:           "technical-doc",
			MaxTokens:          8000,
			RequiredCategories: []document.Category{document.CategoryReadme},
			OptionalCategories: []document.Category{
				document.CategoryAPIDoc, document.CategoryGuide, document.CategoryExample,
			},
			PriorityWeights: map[document.Category]float64{
				document.CategoryAPIDoc:  3.0,
				document.CategoryGuide:   2.5,
				document.CategoryExample: 2.0,
				document.CategoryReadme:  1.5,
			},
		},
		{
			TaskType:           "feature-list",
			MaxTokens:          5000,
			RequiredCategories: []document.Category{document.CategoryReadme},
			OptionalCategories: []document.Category{
				document.CategoryChangelog, document.CategoryGuide,
			},
			PriorityWeights: map[document.Category]float64{
				document.CategoryReadme:    3.0,
				document.CategoryChangelog: 2.0,
				document.CategoryGuide:     1.0,
			},
		},
		{
			TaskType:           "faq",
			MaxTokens:          5000,
			RequiredCategories: []document.Category{},
			OptionalCategories: []document.Category{
				document.CategoryReadme, document.CategoryGuide, document.CategoryAPIDoc,
			},
			PriorityWeights: map[document.Category]float64{
				document.CategoryGuide:  3.0,
				document.CategoryReadme: 2.0,
				document.CategoryAPIDoc: 1.0,
			},
		},
	}
}
