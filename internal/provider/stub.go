package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StubProvider is the offline chain terminator. It never fails and needs no
// credentials, producing deterministic canned output so the pipeline stays
// usable with every real backend down. It normally carries the lowest
// priority so it is only reached after genuine providers are exhausted.
type StubProvider struct {
	name     string
	priority int
}

// NewStubProvider creates the offline stub.
func NewStubProvider(priority int) *StubProvider {
	return &StubProvider{name: "offline-stub", priority: priority}
}

func (p *StubProvider) Name() string                       { return p.name }
func (p *StubProvider) Priority() int                      { return p.priority }
func (p *StubProvider) Available(ctx context.Context) bool { return true }

// Generate echoes a deterministic completion derived from the prompt. The
// first prompt line is reflected back as a heading so downstream structural
// validation has something real to check.
func (p *StubProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subject := firstNonEmptyLine(req.Prompt)
	if len(subject) > 80 {
		subject = subject[:80]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", strings.TrimLeft(subject, "# "))
	b.WriteString("This content was produced by the offline provider while no ")
	b.WriteString("remote backend was reachable. It summarizes the request it ")
	b.WriteString("was given rather than original generated copy.\n\n")
	b.WriteString("## Summary\n\n")
	b.WriteString(summarizePrompt(req.Prompt))
	b.WriteString("\n")

	text := b.String()
	return &Response{
		Text:       text,
		Provider:   p.name,
		TokensUsed: len(strings.Fields(text)),
		Latency:    time.Millisecond,
	}, nil
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return "Generated content"
}

func summarizePrompt(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > 60 {
		words = words[:60]
	}
	return strings.Join(words, " ")
}
