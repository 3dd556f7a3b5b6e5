// internal/selector/verifier.go
package selector

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
)

// Verification is the outcome of testing a descriptor against the page.
type Verification struct {
	// Unique is true when exactly one element matched and, if an expected
	// marker was supplied, that element carries it.
	Unique bool
	// Count is the number of matches.
	Count int
	// Index is the 0-based position of the expected element among several
	// matches; nil when it is not among them or when nothing was expected.
	Index *int
}

// Usable reports whether the descriptor, optionally with Index as nth, picks
// out the expected element.
func (v Verification) Usable() bool {
	return v.Unique || v.Index != nil
}

// VerifierOptions tunes probing.
type VerifierOptions struct {
	// ProbeTimeout bounds every single probe. Zero disables the bound.
	ProbeTimeout time.Duration
	// MaxProbesPerSecond throttles probes. Zero disables throttling.
	MaxProbesPerSecond float64
}

// DefaultVerifierOptions returns the options used when none are configured.
func DefaultVerifierOptions() VerifierOptions {
	return VerifierOptions{ProbeTimeout: 2 * time.Second}
}

// Verifier checks descriptors for uniqueness and locates an expected element
// within a match set.
type Verifier struct {
	page    PageQuery
	logger  *zap.Logger
	opts    VerifierOptions
	limiter *rate.Limiter
}

// NewVerifier creates a verifier bound to one page.
func NewVerifier(page PageQuery, logger *zap.Logger, opts VerifierOptions) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Verifier{
		page:   page,
		logger: logger.Named("verifier"),
		opts:   opts,
	}
	if opts.MaxProbesPerSecond > 0 {
		burst := int(opts.MaxProbesPerSecond)
		if burst < 1 {
			burst = 1
		}
		v.limiter = rate.NewLimiter(rate.Limit(opts.MaxProbesPerSecond), burst)
	}
	return v
}

// Verify resolves d on the page. When expected is non-empty the match set is
// compared against it by identity marker.
func (v *Verifier) Verify(ctx context.Context, d schemas.SelectorDescriptor, expected string) (Verification, error) {
	if err := ensureOpen(v.page); err != nil {
		return Verification{}, err
	}
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return Verification{}, classifyProbeError(ctx, ctx, v.page, "verify: rate limit", err)
		}
	}

	probeCtx, cancel := v.probeContext(ctx)
	defer cancel()

	var (
		markers []string
		count   int
		err     error
	)
	if expected == "" {
		count, err = v.page.CountMatches(probeCtx, d)
	} else {
		markers, err = v.page.IdentityMarkers(probeCtx, d)
		count = len(markers)
	}
	if err != nil {
		return Verification{}, classifyProbeError(ctx, probeCtx, v.page, "verify "+String(d), err)
	}
	if err := ensureOpen(v.page); err != nil {
		return Verification{}, err
	}

	result := Verification{Count: count}
	switch {
	case count == 0:
	case count == 1:
		result.Unique = expected == "" || markers[0] == expected
	case expected != "":
		for i, m := range markers {
			if m == expected {
				idx := i
				result.Index = &idx
				break
			}
		}
	}

	v.logger.Debug("Verified descriptor",
		zap.String("descriptor", String(d)),
		zap.Int("count", count),
		zap.Bool("unique", result.Unique),
		zap.Bool("indexed", result.Index != nil))
	return result, nil
}

// probeContext bounds a single probe. The caller's ctx is kept as the parent
// so cancellation still reads as cancellation, not as a probe timeout.
func (v *Verifier) probeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.opts.ProbeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, v.opts.ProbeTimeout)
}
