// Package quality validates generated content and drives the
// generate-validate-retry loop. Validation failures never escape as errors;
// after the retry budget is spent a locally synthesized fallback is returned
// flagged as low-confidence.
package quality

import (
	"fmt"
	"regexp"
	"strings"
)

// ContentType names a kind of generated content with its own structural rules.
type ContentType string

const (
	ContentMarketingCopy ContentType = "marketing-copy"
	ContentTechnicalDoc  ContentType = "technical-doc"
	ContentFeatureList   ContentType = "feature-list"
	ContentFAQ           ContentType = "faq"
)

// Severity grades a validation error.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Penalty points per finding. Score starts at 100 and floors at 0.
const (
	penaltyCritical = 25
	penaltyMajor    = 15
	penaltyMinor    = 5
	penaltyWarning  = 2

	// PassScore is the default minimum passing score.
	PassScore = 70
)

// ValidationError is one failed structural or content check.
type ValidationError struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ValidationResult scores one generation attempt.
type ValidationResult struct {
	Score    int               `json:"score"`
	Errors   []ValidationError `json:"errors"`
	Warnings []string          `json:"warnings"`
	Passed   bool              `json:"passed"`
}

// structuralRule is one per-content-type length/shape constraint set.
type structuralRule struct {
	minWords         int
	maxWords         int
	requireTitle     bool
	requiredSections []string
	requireQuestions bool
}

var structuralRules = map[ContentType]structuralRule{
	ContentMarketingCopy: {
		minWords:     40,
		maxWords:     600,
		requireTitle: true,
	},
	ContentTechnicalDoc: {
		minWords:         80,
		maxWords:         2500,
		requireTitle:     true,
		requiredSections: []string{"##"},
	},
	ContentFeatureList: {
		minWords:         20,
		maxWords:         800,
		requireTitle:     true,
		requiredSections: []string{"-"},
	},
	ContentFAQ: {
		minWords:         30,
		maxWords:         1500,
		requireTitle:     true,
		requireQuestions: true,
	},
}

var bannedTokens = []string{
	"[TODO]", "[PLACEHOLDER]", "[INSERT", "INSERT_", "lorem ipsum",
	"{taskResult:", "{state.",
}

// Validator runs structural and content-independent checks.
type Validator struct {
	passScore int
}

// NewValidator creates a validator with the given passing threshold.
// A non-positive threshold falls back to PassScore.
func NewValidator(passScore int) *Validator {
	if passScore <= 0 {
		passScore = PassScore
	}
	return &Validator{passScore: passScore}
}

// Validate scores content against the rules for contentType.
func (v *Validator) Validate(content string, contentType ContentType) ValidationResult {
	result := ValidationResult{Score: 100}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		result.Errors = append(result.Errors, ValidationError{
			Severity: SeverityCritical,
			Message:  "content is empty",
		})
		finalize(&result, v.passScore)
		return result
	}

	rule, known := structuralRules[contentType]
	if !known {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no structural rules for content type %q, generic checks only", contentType))
	} else {
		v.checkStructure(trimmed, rule, &result)
	}

	v.checkBannedTokens(trimmed, &result)
	v.checkRepetition(trimmed, &result)

	finalize(&result, v.passScore)
	return result
}

func (v *Validator) checkStructure(content string, rule structuralRule, result *ValidationResult) {
	words := len(strings.Fields(content))
	lines := strings.Split(content, "\n")

	if rule.requireTitle {
		first := strings.TrimSpace(lines[0])
		if !strings.HasPrefix(first, "#") {
			result.Errors = append(result.Errors, ValidationError{
				Severity: SeverityMajor,
				Message:  "missing title line (expected leading markdown heading)",
			})
		}
	}

	if words < rule.minWords {
		result.Errors = append(result.Errors, ValidationError{
			Severity: SeverityMajor,
			Message:  fmt.Sprintf("too short: %d words, need at least %d", words, rule.minWords),
		})
	}
	if rule.maxWords > 0 && words > rule.maxWords {
		result.Errors = append(result.Errors, ValidationError{
			Severity: SeverityMinor,
			Message:  fmt.Sprintf("too long: %d words, limit %d", words, rule.maxWords),
		})
	}

	for _, section := range rule.requiredSections {
		found := false
		for _, line := range lines[1:] {
			if strings.HasPrefix(strings.TrimSpace(line), section) {
				found = true
				break
			}
		}
		if !found {
			// Missing structure cannot be fixed by grading alone; mark
			// critical so the gate always retries.
			result.Errors = append(result.Errors, ValidationError{
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("missing required section marker %q", section),
			})
		}
	}

	if rule.requireQuestions {
		questions := 0
		for _, line := range lines {
			if strings.HasSuffix(strings.TrimSpace(line), "?") {
				questions++
			}
		}
		if questions == 0 {
			result.Errors = append(result.Errors, ValidationError{
				Severity: SeverityCritical,
				Message:  "FAQ content contains no question lines",
			})
		}
	}
}

func (v *Validator) checkBannedTokens(content string, result *ValidationResult) {
	lower := strings.ToLower(content)
	for _, token := range bannedTokens {
		if strings.Contains(lower, strings.ToLower(token)) {
			result.Errors = append(result.Errors, ValidationError{
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("contains placeholder token %q", token),
			})
		}
	}
}

var normalizeSpace = regexp.MustCompile(`\s+`)

// checkRepetition flags any normalized line repeated four or more times.
func (v *Validator) checkRepetition(content string, result *ValidationResult) {
	counts := make(map[string]int)
	for _, line := range strings.Split(content, "\n") {
		norm := normalizeSpace.ReplaceAllString(strings.ToLower(strings.TrimSpace(line)), " ")
		if len(norm) < 10 {
			continue
		}
		counts[norm]++
	}
	for line, n := range counts {
		if n >= 4 {
			result.Errors = append(result.Errors, ValidationError{
				Severity: SeverityMajor,
				Message:  fmt.Sprintf("line repeated %d times: %.40q", n, line),
			})
		}
	}
}

func finalize(result *ValidationResult, passScore int) {
	score := 100
	critical := false
	for _, e := range result.Errors {
		switch e.Severity {
		case SeverityCritical:
			score -= penaltyCritical
			critical = true
		case SeverityMajor:
			score -= penaltyMajor
		case SeverityMinor:
			score -= penaltyMinor
		}
	}
	score -= penaltyWarning * len(result.Warnings)
	if score < 0 {
		score = 0
	}
	result.Score = score
	result.Passed = score >= passScore && !critical
}
