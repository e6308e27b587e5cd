package slug

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// maxProbes caps the numbered-suffix search before the resolver gives up
// and falls back to a timestamp suffix.
const maxProbes = 1000

var (
	slugProbesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slug_probes_total",
		Help: "Total number of slug availability probes issued",
	})

	slugTimestampFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slug_timestamp_fallbacks_total",
		Help: "Times slug resolution exhausted numbered probes and fell back to a timestamp suffix",
	})
)

// Checker reports whether a slug is already held by an active product.
// Implementations read persisted state; soft-deleted products must not
// count as holders.
type Checker interface {
	SlugTaken(ctx context.Context, slug string) (bool, error)
}

// Resolver turns a base slug into one that is free among active products
// by probing numbered candidates (base, base-1, base-2, ...). It holds no
// lock across probe and insert; the storage layer's partial unique index
// is the authoritative guard, and callers retry resolution when an insert
// loses that race.
type Resolver struct {
	checker Checker
	logger  *log.Logger
	now     func() time.Time // injection point for tests
}

// NewResolver creates a Resolver probing through checker. A nil logger
// falls back to the default logger.
func NewResolver(checker Checker, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{checker: checker, logger: logger, now: time.Now}
}

// Resolve returns the first free candidate derived from base: base itself,
// then base-1 through base-1000. If every candidate is taken it returns
// base-<unixTimestamp> without a further uniqueness check; that degraded
// path is logged and counted so it is never a silent correctness gap.
// Storage errors abort resolution and propagate unchanged; only
// collisions are retried.
func (r *Resolver) Resolve(ctx context.Context, base string) (string, error) {
	taken, err := r.probe(ctx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}

	for i := 1; i <= maxProbes; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		taken, err := r.probe(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	fallback := fmt.Sprintf("%s-%d", base, r.now().Unix())
	slugTimestampFallbacks.Inc()
	r.logger.Printf("WARN: slug resolution exhausted %d probes for base %q, using timestamp fallback %q without re-verification", maxProbes, base, fallback)
	return fallback, nil
}

func (r *Resolver) probe(ctx context.Context, candidate string) (bool, error) {
	slugProbesTotal.Inc()
	taken, err := r.checker.SlugTaken(ctx, candidate)
	if err != nil {
		return false, fmt.Errorf("slug: probing %q: %w", candidate, err)
	}
	return taken, nil
}
