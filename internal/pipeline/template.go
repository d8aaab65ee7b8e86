package pipeline

import (
	"strings"
)

// Input templates are parsed into a small AST of literal segments and typed
// references instead of being substituted by raw string replacement, so
// resolution is an explicit lookup step with a defined miss behavior.

type segmentKind int

const (
	segLiteral segmentKind = iota
	segTaskResult
	segStateVar
)

type segment struct {
	kind segmentKind
	text string // literal text, task id, or state key
	raw  string // original placeholder text, kept for unresolved refs
}

// template is a parsed input template.
type template struct {
	segments []segment
}

const (
	taskResultPrefix = "{taskResult:"
	stateVarPrefix   = "{state."
)

// parseTemplate splits raw into literals and references. Malformed
// placeholders (no closing brace) stay literal.
func parseTemplate(raw string) template {
	var segments []segment
	for len(raw) > 0 {
		ti := strings.Index(raw, taskResultPrefix)
		si := strings.Index(raw, stateVarPrefix)

		next, prefix, kind := -1, "", segLiteral
		if ti >= 0 && (si < 0 || ti <= si) {
			next, prefix, kind = ti, taskResultPrefix, segTaskResult
		} else if si >= 0 {
			next, prefix, kind = si, stateVarPrefix, segStateVar
		}

		if next < 0 {
			segments = append(segments, segment{kind: segLiteral, text: raw})
			break
		}

		if next > 0 {
			segments = append(segments, segment{kind: segLiteral, text: raw[:next]})
		}
		rest := raw[next:]
		end := strings.Index(rest, "}")
		if end < 0 {
			segments = append(segments, segment{kind: segLiteral, text: rest})
			break
		}

		name := rest[len(prefix):end]
		segments = append(segments, segment{kind: kind, text: name, raw: rest[:end+1]})
		raw = rest[end+1:]
	}
	return template{segments: segments}
}

// refs returns the task ids referenced by the template.
func (t template) taskRefs() []string {
	var ids []string
	for _, s := range t.segments {
		if s.kind == segTaskResult {
			ids = append(ids, s.text)
		}
	}
	return ids
}

// resolver supplies lookup for template resolution.
type resolver interface {
	// lookupResult returns the serialized payload for a successful task
	// result. ok is false for missing or failed results, which leaves
	// the placeholder unresolved.
	lookupResult(taskID string) (string, bool)

	// lookupState returns the shared variable rendered as a string.
	lookupState(key string) (string, bool)
}

// resolve renders the template against the resolver. Unresolvable
// references are left in place verbatim so downstream validation can flag
// them instead of silently dropping content.
func (t template) resolve(r resolver) string {
	var b strings.Builder
	for _, s := range t.segments {
		switch s.kind {
		case segLiteral:
			b.WriteString(s.text)
		case segTaskResult:
			if v, ok := r.lookupResult(s.text); ok {
				b.WriteString(v)
			} else {
				b.WriteString(s.raw)
			}
		case segStateVar:
			if v, ok := r.lookupState(s.text); ok {
				b.WriteString(v)
			} else {
				b.WriteString(s.raw)
			}
		}
	}
	return b.String()
}
