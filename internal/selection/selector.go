package selection

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/draftd/internal/document"
	"github.com/fyrsmithlabs/draftd/internal/logging"
)

// SelectedContext is the token-bounded document subset for one task.
type SelectedContext struct {
	SelectedDocuments  []document.Document `json:"selected_documents"`
	TotalTokens        int                 `json:"total_tokens"`
	StrategyUsed       string              `json:"strategy_used"`
	SelectionRationale string              `json:"selection_rationale"`
}

// Prompt renders the selected documents into a single context block for
// inclusion in a provider prompt.
func (sc SelectedContext) Prompt() string {
	var b strings.Builder
	for _, doc := range sc.SelectedDocuments {
		fmt.Fprintf(&b, "--- %s (%s) ---\n%s\n\n", doc.Path, doc.Category, doc.RawContent)
	}
	return b.String()
}

// Selector scores and packs documents against per-task-type strategies.
type Selector struct {
	registry *Registry
	logger   *logging.Logger
	now      func() time.Time
}

// NewSelector creates a Selector over the given strategy registry.
func NewSelector(registry *Registry, logger *logging.Logger) *Selector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Selector{
		registry: registry,
		logger:   logger.Named("selection"),
		now:      time.Now,
	}
}

type candidate struct {
	doc   document.Document
	score float64
}

// SelectContext picks a token-budgeted subset of docs for taskType.
//
// Required-category documents are admitted first (truncated to the remaining
// budget when nothing else fits); remaining candidates are admitted greedily
// in score order while the budget holds. The returned context never exceeds
// the strategy's MaxTokens.
func (s *Selector) SelectContext(ctx context.Context, docs []document.Document, taskType string) (SelectedContext, error) {
	strategy, err := s.registry.Get(taskType)
	if err != nil {
		return SelectedContext{}, err
	}

	var rationale strings.Builder
	fmt.Fprintf(&rationale, "strategy=%s budget=%d tokens\n", strategy.TaskType, strategy.MaxTokens)

	if len(docs) == 0 {
		rationale.WriteString("no input documents supplied\n")
		return SelectedContext{
			SelectedDocuments:  []document.Document{},
			StrategyUsed:       strategy.TaskType,
			SelectionRationale: rationale.String(),
		}, nil
	}

	candidates := make([]candidate, 0, len(docs))
	for _, doc := range docs {
		if !strategy.isEligible(doc.Category) {
			fmt.Fprintf(&rationale, "excluded %s: category %s not eligible\n", doc.Path, doc.Category)
			continue
		}
		score := strategy.weight(doc.Category) * s.recencyFactor(doc.LastModified)
		candidates = append(candidates, candidate{doc: doc, score: score})
	}

	// Required docs first, then by score, path as deterministic tie-break.
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := strategy.isRequired(candidates[i].doc.Category), strategy.isRequired(candidates[j].doc.Category)
		if ri != rj {
			return ri
		}
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].doc.Path < candidates[j].doc.Path
	})

	selected := make([]document.Document, 0, len(candidates))
	total := 0
	for _, c := range candidates {
		remaining := strategy.MaxTokens - total
		switch {
		case c.doc.TokenEstimate <= remaining:
			selected = append(selected, c.doc)
			total += c.doc.TokenEstimate
			fmt.Fprintf(&rationale, "included %s (%s, %d tokens, score %.2f)\n",
				c.doc.Path, c.doc.Category, c.doc.TokenEstimate, c.score)

		case strategy.isRequired(c.doc.Category) && remaining > 0:
			cut := c.doc.Truncated(remaining)
			selected = append(selected, cut)
			total += cut.TokenEstimate
			fmt.Fprintf(&rationale, "included %s truncated %d -> %d tokens (required category %s)\n",
				c.doc.Path, c.doc.TokenEstimate, cut.TokenEstimate, c.doc.Category)

		default:
			fmt.Fprintf(&rationale, "excluded %s: %d tokens exceeds remaining budget %d\n",
				c.doc.Path, c.doc.TokenEstimate, remaining)
		}
	}

	s.logger.Debug(ctx, "context selected",
		zap.String("task_type", taskType),
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(selected)),
		zap.Int("total_tokens", total),
	)

	return SelectedContext{
		SelectedDocuments:  selected,
		TotalTokens:        total,
		StrategyUsed:       strategy.TaskType,
		SelectionRationale: rationale.String(),
	}, nil
}

// recencyFactor maps document age to (0,1], non-increasing with age.
// A document touched today scores 1.0; one untouched for a month ~0.5.
func (s *Selector) recencyFactor(lastModified time.Time) float64 {
	age := s.now().Sub(lastModified)
	if age < 0 {
		age = 0
	}
	days := age.Hours() / 24
	return 1.0 / (1.0 + days/30.0)
}
