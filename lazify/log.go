package lazify

import "github.com/go-logr/logr"

// Option configures the lazifier: a functional option applied over
// a private config struct, so new knobs can be added without
// breaking callers.
type Option func(*config)

type config struct {
	log      logr.Logger
	memoize  bool
	nameFunc func(base string) string
}

func newConfig(opts ...Option) *config {
	c := &config{
		log:      logr.Discard(),
		memoize:  true,
		nameFunc: defaultNameFunc,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithLogger threads a structured logger through slice extraction,
// safety checking, and outlining, at V(0) for major decisions
// (outline rejected, callsite lazified) and V(1) for per-slice
// summaries (slice extracted, slice outlineable, function outlined,
// thunk built). No per-block or per-instruction detail is logged.
func WithLogger(log logr.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithMemoization selects call-by-need (the default, memoized thunk)
// versus call-by-name (a thunk re-evaluated on every force). It
// mirrors the original pass's -wylazy-memo flag, which this module
// exposes as a constructor option rather than a global.
func WithMemoization(on bool) Option {
	return func(c *config) { c.memoize = on }
}

// WithNameFunc overrides how outlined function and cloned-callee
// names are generated. The default appends a random, module-unique
// suffix (see naming.go); a caller that needs reproducible names can
// supply a deterministic one.
func WithNameFunc(f func(base string) string) Option {
	return func(c *config) { c.nameFunc = f }
}
