package immagent

import (
	"time"

	"github.com/youssefsiam38/immagent/hooks"
	"github.com/youssefsiam38/immagent/llm"
	"github.com/youssefsiam38/immagent/tool"
)

// Advance loop defaults.
const (
	DefaultMaxRetries    = 3
	DefaultTimeout       = 120 * time.Second
	DefaultMaxToolRounds = 10
)

// StoreOption configures a Store at construction.
type StoreOption func(*storeOptions)

type storeOptions struct {
	provider     llm.Provider
	toolProvider tool.Provider
	hooks        *hooks.Registry
	cacheSize    int

	minConns        int32
	maxConns        int32
	maxConnIdleTime time.Duration
}

// WithProvider sets the completion provider used by Advance.
func WithProvider(provider llm.Provider) StoreOption {
	return func(o *storeOptions) { o.provider = provider }
}

// WithToolProvider sets the default tool provider for turns. A per-call
// WithTools option overrides it.
func WithToolProvider(provider tool.Provider) StoreOption {
	return func(o *storeOptions) { o.toolProvider = provider }
}

// WithHooks attaches a hook registry.
func WithHooks(registry *hooks.Registry) StoreOption {
	return func(o *storeOptions) { o.hooks = registry }
}

// WithCacheSize bounds the identity cache of a persistent store. Ignored by
// in-memory stores, which cache everything.
func WithCacheSize(size int) StoreOption {
	return func(o *storeOptions) { o.cacheSize = size }
}

// WithMinConns sets the pool's minimum connection count. Connect only.
func WithMinConns(n int32) StoreOption {
	return func(o *storeOptions) { o.minConns = n }
}

// WithMaxConns sets the pool's maximum connection count. Connect only.
func WithMaxConns(n int32) StoreOption {
	return func(o *storeOptions) { o.maxConns = n }
}

// WithMaxConnIdleTime sets how long idle connections live. Connect only.
func WithMaxConnIdleTime(d time.Duration) StoreOption {
	return func(o *storeOptions) { o.maxConnIdleTime = d }
}

// AdvanceOption configures a single Advance call.
type AdvanceOption func(*advanceOptions)

type advanceOptions struct {
	maxRetries    int
	timeout       time.Duration
	maxToolRounds int
	toolProvider  tool.Provider
	override      ModelConfig
}

func newAdvanceOptions(defaultTools tool.Provider) advanceOptions {
	return advanceOptions{
		maxRetries:    DefaultMaxRetries,
		timeout:       DefaultTimeout,
		maxToolRounds: DefaultMaxToolRounds,
		toolProvider:  defaultTools,
	}
}

// WithMaxRetries sets the total attempts per completion call.
func WithMaxRetries(n int) AdvanceOption {
	return func(o *advanceOptions) { o.maxRetries = n }
}

// WithTimeout bounds each completion attempt.
func WithTimeout(d time.Duration) AdvanceOption {
	return func(o *advanceOptions) { o.timeout = d }
}

// WithMaxToolRounds caps the completion rounds of one turn.
func WithMaxToolRounds(n int) AdvanceOption {
	return func(o *advanceOptions) { o.maxToolRounds = n }
}

// WithTools sets the tool provider for this turn, replacing the store
// default. Pass nil to run the turn without tools.
func WithTools(provider tool.Provider) AdvanceOption {
	return func(o *advanceOptions) { o.toolProvider = provider }
}

// WithModelConfig merges a config override on top of the agent's stored
// config for this turn only. The override is not persisted.
func WithModelConfig(override ModelConfig) AdvanceOption {
	return func(o *advanceOptions) { o.override = o.override.Merge(override) }
}

// WithTemperature overrides the sampling temperature for this turn.
func WithTemperature(t float64) AdvanceOption {
	return WithModelConfig(ModelConfig{Temperature: &t})
}

// WithMaxTokens overrides the response token cap for this turn.
func WithMaxTokens(n int64) AdvanceOption {
	return WithModelConfig(ModelConfig{MaxTokens: &n})
}

// WithTopP overrides nucleus sampling for this turn.
func WithTopP(p float64) AdvanceOption {
	return WithModelConfig(ModelConfig{TopP: &p})
}
