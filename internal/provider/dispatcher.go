package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/draftd/internal/logging"
)

const (
	// DefaultDegradationCap bounds failed attempts per dispatch. Once hit,
	// the chain is abandoned even with untried providers remaining, so a
	// pathological chain cannot stack timeouts.
	DefaultDegradationCap = 3

	// DefaultCallTimeout is the per-provider-call deadline.
	DefaultCallTimeout = 60 * time.Second
)

// DispatcherConfig tunes the fallback chain.
type DispatcherConfig struct {
	DegradationCap int           `koanf:"degradation_cap"`
	CallTimeout    time.Duration `koanf:"call_timeout"`

	// RatePerSecond limits calls per provider. Zero disables limiting.
	RatePerSecond float64 `koanf:"rate_per_second"`
	RateBurst     int     `koanf:"rate_burst"`
}

// ProviderHealth is a point-in-time snapshot of one provider's bookkeeping.
type ProviderHealth struct {
	Name                string
	ConsecutiveFailures int
	LastError           string
	LastSuccess         time.Time
}

type providerState struct {
	provider Provider
	limiter  *rate.Limiter

	mu                  sync.Mutex
	consecutiveFailures int
	lastError           error
	lastSuccess         time.Time
}

// Dispatcher tries providers in strict priority order and returns the first
// success. Cheapest-first ordering keeps cost deterministic at the expense
// of added latency when the head of the chain is down.
type Dispatcher struct {
	cfg     DispatcherConfig
	chain   []*providerState
	logger  *logging.Logger
	metrics *Metrics

	mu      sync.RWMutex
	current string
}

// NewDispatcher constructs a dispatcher over the given providers, ordered by
// ascending Priority (lower value is tried first).
func NewDispatcher(cfg DispatcherConfig, providers []Provider, logger *logging.Logger) *Dispatcher {
	if cfg.DegradationCap <= 0 {
		cfg.DegradationCap = DefaultDegradationCap
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	ordered := make([]Provider, len(providers))
	copy(ordered, providers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	chain := make([]*providerState, 0, len(ordered))
	for _, p := range ordered {
		st := &providerState{provider: p}
		if cfg.RatePerSecond > 0 {
			burst := cfg.RateBurst
			if burst <= 0 {
				burst = 1
			}
			st.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
		}
		chain = append(chain, st)
	}

	return &Dispatcher{
		cfg:     cfg,
		chain:   chain,
		logger:  logger.Named("dispatcher"),
		metrics: NewMetrics(),
	}
}

// Generate walks the chain until a provider succeeds. Returns
// *AllProvidersFailedError once the chain is exhausted or the degradation
// cap is hit. No retry happens within a single provider call.
func (d *Dispatcher) Generate(ctx context.Context, req Request) (*Response, error) {
	attempts := make(map[string]error)
	failures := 0

	for _, st := range d.chain {
		name := st.provider.Name()

		if failures >= d.cfg.DegradationCap {
			d.logger.Warn(ctx, "degradation cap reached, abandoning chain",
				zap.Int("cap", d.cfg.DegradationCap))
			break
		}

		if !st.provider.Available(ctx) {
			d.logger.Debug(ctx, "provider unavailable, skipping", zap.String("provider", name))
			d.metrics.FallbacksTotal.Inc()
			continue
		}

		if st.limiter != nil && !st.limiter.Allow() {
			err := &rateLimitedError{provider: name}
			attempts[name] = err
			failures++
			d.recordFailure(st, err)
			d.metrics.FallbacksTotal.Inc()
			d.logger.Warn(ctx, "provider rate-limited locally", zap.String("provider", name))
			continue
		}

		d.metrics.AttemptsTotal.WithLabelValues(name).Inc()

		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		resp, err := st.provider.Generate(callCtx, req)
		cancel()

		if err != nil {
			attempts[name] = err
			failures++
			d.recordFailure(st, err)
			d.metrics.FailuresTotal.WithLabelValues(name).Inc()
			d.metrics.FallbacksTotal.Inc()
			d.logger.Warn(ctx, "provider failed, falling back",
				zap.String("provider", name), zap.Error(err))
			continue
		}

		d.recordSuccess(st)
		d.setCurrent(name)
		d.metrics.GenerateSeconds.WithLabelValues(name).Observe(resp.Latency.Seconds())
		if resp.TokensUsed > 0 {
			d.metrics.TokensUsedTotal.WithLabelValues(name).Add(float64(resp.TokensUsed))
		}
		d.logger.Info(ctx, "generation succeeded",
			zap.String("provider", name),
			zap.Duration("latency", resp.Latency),
			zap.Int("tokens", resp.TokensUsed))
		return resp, nil
	}

	d.metrics.ExhaustedTotal.Inc()
	return nil, &AllProvidersFailedError{Attempts: attempts}
}

// Current returns the provider that served the most recent success, for
// cost and telemetry reporting. Empty before the first success.
func (d *Dispatcher) Current() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// Health snapshots per-provider bookkeeping in chain order.
func (d *Dispatcher) Health() []ProviderHealth {
	out := make([]ProviderHealth, 0, len(d.chain))
	for _, st := range d.chain {
		st.mu.Lock()
		h := ProviderHealth{
			Name:                st.provider.Name(),
			ConsecutiveFailures: st.consecutiveFailures,
			LastSuccess:         st.lastSuccess,
		}
		if st.lastError != nil {
			h.LastError = st.lastError.Error()
		}
		st.mu.Unlock()
		out = append(out, h)
	}
	return out
}

func (d *Dispatcher) setCurrent(name string) {
	d.mu.Lock()
	d.current = name
	d.mu.Unlock()
}

func (d *Dispatcher) recordFailure(st *providerState, err error) {
	st.mu.Lock()
	st.consecutiveFailures++
	st.lastError = err
	st.mu.Unlock()
}

func (d *Dispatcher) recordSuccess(st *providerState) {
	st.mu.Lock()
	st.consecutiveFailures = 0
	st.lastError = nil
	st.lastSuccess = time.Now()
	st.mu.Unlock()
}

type rateLimitedError struct {
	provider string
}

func (e *rateLimitedError) Error() string {
	return e.provider + ": local rate limit exceeded"
}
