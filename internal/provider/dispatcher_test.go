package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider scripts availability and outcomes for dispatcher tests.
type fakeProvider struct {
	name      string
	priority  int
	available bool
	err       error
	text      string
	calls     int
}

func (f *fakeProvider) Name() string                       { return f.name }
func (f *fakeProvider) Priority() int                      { return f.priority }
func (f *fakeProvider) Available(ctx context.Context) bool { return f.available }

func (f *fakeProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Text: f.text, Provider: f.name, TokensUsed: 10, Latency: time.Millisecond}, nil
}

func TestDispatcher_FirstSuccessWins(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 1, available: true, text: "from a"}
	b := &fakeProvider{name: "b", priority: 2, available: true, text: "from b"}
	d := NewDispatcher(DispatcherConfig{}, []Provider{a, b}, nil)

	resp, err := d.Generate(context.Background(), Request{Prompt: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "from a", resp.Text)
	assert.Equal(t, 1, a.calls)
	assert.Zero(t, b.calls, "later providers must not be tried after a success")
	assert.Equal(t, "a", d.Current())
}

func TestDispatcher_FallbackOnFailure(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 1, available: true, err: errors.New("boom")}
	b := &fakeProvider{name: "b", priority: 2, available: true, text: "from b"}
	d := NewDispatcher(DispatcherConfig{}, []Provider{a, b}, nil)

	resp, err := d.Generate(context.Background(), Request{Prompt: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "from b", resp.Text)
	assert.Equal(t, 1, a.calls, "failed provider is attempted exactly once")
	assert.Equal(t, "b", d.Current())
}

func TestDispatcher_PriorityOrderNotDeclarationOrder(t *testing.T) {
	low := &fakeProvider{name: "low", priority: 9, available: true, text: "low"}
	high := &fakeProvider{name: "high", priority: 1, available: true, text: "high"}
	d := NewDispatcher(DispatcherConfig{}, []Provider{low, high}, nil)

	resp, err := d.Generate(context.Background(), Request{Prompt: "x"})

	require.NoError(t, err)
	assert.Equal(t, "high", resp.Text)
	assert.Zero(t, low.calls)
}

func TestDispatcher_SkipsUnavailable(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 1, available: false, text: "never"}
	b := &fakeProvider{name: "b", priority: 2, available: true, text: "from b"}
	d := NewDispatcher(DispatcherConfig{}, []Provider{a, b}, nil)

	resp, err := d.Generate(context.Background(), Request{Prompt: "x"})

	require.NoError(t, err)
	assert.Equal(t, "from b", resp.Text)
	assert.Zero(t, a.calls, "unavailable providers are skipped without a call")
}

func TestDispatcher_AllFail(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 1, available: true, err: errors.New("timeout")}
	b := &fakeProvider{name: "b", priority: 2, available: true, err: errors.New("auth")}
	d := NewDispatcher(DispatcherConfig{}, []Provider{a, b}, nil)

	_, err := d.Generate(context.Background(), Request{Prompt: "x"})

	var exhausted *AllProvidersFailedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	require.Contains(t, exhausted.Attempts, "a")
	require.Contains(t, exhausted.Attempts, "b")
	assert.EqualError(t, exhausted.Attempts["b"], "auth")
}

func TestDispatcher_DegradationCap(t *testing.T) {
	fail := errors.New("down")
	providers := []Provider{
		&fakeProvider{name: "p1", priority: 1, available: true, err: fail},
		&fakeProvider{name: "p2", priority: 2, available: true, err: fail},
		&fakeProvider{name: "p3", priority: 3, available: true, err: fail},
		&fakeProvider{name: "p4", priority: 4, available: true, text: "would succeed"},
	}
	d := NewDispatcher(DispatcherConfig{DegradationCap: 3}, providers, nil)

	_, err := d.Generate(context.Background(), Request{Prompt: "x"})

	var exhausted *AllProvidersFailedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 3, "chain abandoned at the degradation cap")
	assert.Zero(t, providers[3].(*fakeProvider).calls)
}

func TestDispatcher_NoProvidersAvailable(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 1, available: false}
	d := NewDispatcher(DispatcherConfig{}, []Provider{a}, nil)

	_, err := d.Generate(context.Background(), Request{Prompt: "x"})

	var exhausted *AllProvidersFailedError
	require.ErrorAs(t, err, &exhausted)
	assert.Empty(t, exhausted.Attempts)
}

func TestDispatcher_HealthBookkeeping(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 1, available: true, err: errors.New("rate-limit")}
	b := &fakeProvider{name: "b", priority: 2, available: true, text: "ok"}
	d := NewDispatcher(DispatcherConfig{}, []Provider{a, b}, nil)

	_, err := d.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)

	health := d.Health()
	require.Len(t, health, 2)
	assert.Equal(t, "a", health[0].Name)
	assert.Equal(t, 1, health[0].ConsecutiveFailures)
	assert.Contains(t, health[0].LastError, "rate-limit")
	assert.Zero(t, health[1].ConsecutiveFailures)
	assert.False(t, health[1].LastSuccess.IsZero())
}

// hangingProvider blocks until its call context is cancelled.
type hangingProvider struct {
	name     string
	priority int
}

func (h *hangingProvider) Name() string                       { return h.name }
func (h *hangingProvider) Priority() int                      { return h.priority }
func (h *hangingProvider) Available(ctx context.Context) bool { return true }

func (h *hangingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDispatcher_CallTimeoutAdvancesChain(t *testing.T) {
	slow := &hangingProvider{name: "slow", priority: 1}
	fast := &fakeProvider{name: "fast", priority: 2, available: true, text: "from fast"}
	d := NewDispatcher(DispatcherConfig{CallTimeout: 50 * time.Millisecond}, []Provider{slow, fast}, nil)

	start := time.Now()
	resp, err := d.Generate(context.Background(), Request{Prompt: "x"})

	require.NoError(t, err)
	assert.Equal(t, "from fast", resp.Text)
	assert.Less(t, time.Since(start), 5*time.Second, "per-call deadline must bound the slow provider")

	health := d.Health()
	require.Len(t, health, 2)
	assert.Equal(t, 1, health[0].ConsecutiveFailures)
	assert.Contains(t, health[0].LastError, context.DeadlineExceeded.Error())
}

func TestDispatcher_RateLimiterAdvancesChain(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 1, available: true, text: "from a"}
	b := &fakeProvider{name: "b", priority: 2, available: true, text: "from b"}
	// Burst of 1 and effectively zero refill: second dispatch must skip a.
	d := NewDispatcher(DispatcherConfig{RatePerSecond: 0.0001, RateBurst: 1}, []Provider{a, b}, nil)

	resp1, err := d.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "from a", resp1.Text)

	resp2, err := d.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "from b", resp2.Text)
	assert.Equal(t, 1, a.calls)
}

func TestStubProvider_AlwaysSucceeds(t *testing.T) {
	stub := NewStubProvider(99)
	ctx := context.Background()

	assert.True(t, stub.Available(ctx))
	resp, err := stub.Generate(ctx, Request{Prompt: "Write marketing copy for draftd\nmore detail"})

	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Write marketing copy for draftd")
	assert.Contains(t, resp.Text, "## Summary")
	assert.Equal(t, "offline-stub", resp.Provider)
	assert.Positive(t, resp.TokensUsed)
}

func TestStubProvider_RespectsCancelledContext(t *testing.T) {
	stub := NewStubProvider(99)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stub.Generate(ctx, Request{Prompt: "x"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAllProvidersFailedError_Message(t *testing.T) {
	err := &AllProvidersFailedError{Attempts: map[string]error{"a": errors.New("down")}}
	assert.Contains(t, err.Error(), "all providers failed")
	assert.Contains(t, err.Error(), "a: down")

	empty := &AllProvidersFailedError{}
	assert.Contains(t, empty.Error(), "no provider was available")
}
