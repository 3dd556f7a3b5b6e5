// internal/selector/synthesizer.go
package selector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
)

// Strategy names recorded on a Resolution.
const (
	StrategyLocal      = "local"
	StrategyNested     = "nested"
	StrategyStructural = "structural"
)

// Options tunes synthesis.
type Options struct {
	// Timeout bounds acquisition of the target element.
	Timeout time.Duration
	// MaxAncestorDepth bounds the ancestor search for a parent scope.
	MaxAncestorDepth int
	// ShortTextLimit is the rune length up to which text is matched exactly.
	ShortTextLimit int
	// TestIDAttribute names the stable test identifier attribute.
	TestIDAttribute string
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Timeout:          5 * time.Second,
		MaxAncestorDepth: 10,
		ShortTextLimit:   80,
		TestIDAttribute:  "data-testid",
	}
}

// withDefaults fills every zero field from DefaultOptions, so a partially
// populated Options from config or tests is always usable.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.MaxAncestorDepth <= 0 {
		o.MaxAncestorDepth = def.MaxAncestorDepth
	}
	if o.ShortTextLimit <= 0 {
		o.ShortTextLimit = def.ShortTextLimit
	}
	if o.TestIDAttribute == "" {
		o.TestIDAttribute = def.TestIDAttribute
	}
	return o
}

// Resolution is the full outcome of a synthesis call.
type Resolution struct {
	Descriptor   schemas.SelectorDescriptor
	Element      *ElementSnapshot
	Verification Verification
	Strategy     string
}

// Synthesizer produces the most stable verified descriptor for an element.
type Synthesizer struct {
	page     PageQuery
	verifier *Verifier
	logger   *zap.Logger
	opts     Options
}

// NewSynthesizer creates a synthesizer. A nil verifier gets one with default options.
func NewSynthesizer(page PageQuery, verifier *Verifier, logger *zap.Logger, opts Options) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if verifier == nil {
		verifier = NewVerifier(page, logger, DefaultVerifierOptions())
	}
	return &Synthesizer{
		page:     page,
		verifier: verifier,
		logger:   logger.Named("synthesizer"),
		opts:     opts.withDefaults(),
	}
}

// Synthesize returns a descriptor that resolves to exactly the target element.
func (s *Synthesizer) Synthesize(ctx context.Context, target Target) (schemas.SelectorDescriptor, error) {
	res, err := s.Resolve(ctx, target)
	if err != nil {
		return schemas.SelectorDescriptor{}, err
	}
	return res.Descriptor, nil
}

// Resolve is Synthesize plus the element facts and the final verification.
func (s *Synthesizer) Resolve(ctx context.Context, target Target) (*Resolution, error) {
	if err := ensureOpen(s.page); err != nil {
		return nil, err
	}
	marker, err := s.acquire(ctx, target)
	if err != nil {
		return nil, err
	}

	call := newSynthesisCall(s, marker)
	el, err := call.element(ctx, marker)
	if err != nil {
		return nil, err
	}

	// A local descriptor that works is always preferred; nesting only adds a
	// dependency on the parent staying put.
	res, ambiguous, err := s.local(ctx, call, el)
	if err != nil || res != nil {
		return res, err
	}

	// Nesting needs a local descriptor to qualify. Without one, only the
	// structural fallback is left.
	if ambiguous != nil {
		res, err = s.nested(ctx, call, el, *ambiguous)
		if err != nil || res != nil {
			return res, err
		}
	}

	return s.structural(ctx, call, el)
}

// acquire turns the target into an identity marker within the configured timeout.
func (s *Synthesizer) acquire(ctx context.Context, target Target) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	switch {
	case target.Marker != "":
		if _, err := s.page.ElementMetadata(opCtx, target.Marker); err != nil {
			return "", classifyProbeError(ctx, opCtx, s.page, "acquire target", err)
		}
		return target.Marker, nil
	case target.Locator != nil:
		if err := Validate(*target.Locator); err != nil {
			return "", err
		}
		marker, err := s.page.ResolveMarker(opCtx, *target.Locator)
		if err != nil {
			return "", classifyProbeError(ctx, opCtx, s.page, "acquire target "+String(*target.Locator), err)
		}
		if err := ensureOpen(s.page); err != nil {
			return "", err
		}
		return marker, nil
	default:
		return "", fmt.Errorf("acquire target: %w: empty target", ErrInvalidDescriptor)
	}
}

type candidate struct {
	source string
	d      schemas.SelectorDescriptor
}

// localCandidates lists element-local descriptors in priority order. Strict
// variants precede relaxed ones; later entries are only consulted when the
// earlier ones did not pick out the target.
func (s *Synthesizer) localCandidates(el *ElementSnapshot) []candidate {
	var out []candidate
	if id := TestIDValue(el, s.opts.TestIDAttribute); id != "" {
		out = append(out, candidate{"testid", TestID(id)})
	}
	if name := AccessibleName(el); el.Role != "" && name != "" {
		out = append(out,
			candidate{"role", Role(el.Role, name, true)},
			candidate{"role", Role(el.Role, name, false)})
	}
	if label := LabelText(el); label != "" {
		out = append(out,
			candidate{"label", Label(label, true)},
			candidate{"label", Label(label, false)})
	}
	if !HasExplicitName(el) {
		if v := NormalizeWhitespace(el.Placeholder); v != "" {
			out = append(out, candidate{"placeholder", Placeholder(v, true)}, candidate{"placeholder", Placeholder(v, false)})
		}
		if v := NormalizeWhitespace(el.Alt); v != "" {
			out = append(out, candidate{"alt", Alt(v, true)}, candidate{"alt", Alt(v, false)})
		}
		if v := NormalizeWhitespace(el.Title); v != "" {
			out = append(out, candidate{"title", Title(v, true)}, candidate{"title", Title(v, false)})
		}
	}
	out = append(out, s.textCandidates(el)...)
	out = append(out, structuralCandidates(el)...)
	return out
}

// textCandidates proposes visible-text descriptors. Short text is tried exact
// first and then as a substring. Long text is cut to ShortTextLimit and only
// ever matched as a substring, since the full string would pin the descriptor
// to copy that changes often.
func (s *Synthesizer) textCandidates(el *ElementSnapshot) []candidate {
	text := NormalizeWhitespace(el.Text)
	if text == "" {
		return nil
	}
	if len([]rune(text)) <= s.opts.ShortTextLimit {
		return []candidate{{"text", Text(text, true)}, {"text", Text(text, false)}}
	}
	return []candidate{{"text", Text(TruncateRunes(text, s.opts.ShortTextLimit), false)}}
}

// structuralCandidates are the attribute selectors of last resort before the
// positional path: the form name, then the id.
func structuralCandidates(el *ElementSnapshot) []candidate {
	var out []candidate
	if el.NameAttr != "" {
		out = append(out, candidate{"name", CSS(fmt.Sprintf(`%s[name="%s"]`, el.Tag, cssEscapeString(el.NameAttr)))})
	}
	if el.ID != "" {
		out = append(out, candidate{"id", CSS(idSelector(el.ID))})
	}
	return out
}

// local walks the element-local candidates. It returns a resolution for the
// first usable one, or the first candidate that matched elements without
// isolating the target, for use under a parent scope.
func (s *Synthesizer) local(ctx context.Context, call *synthesisCall, el *ElementSnapshot) (*Resolution, *candidate, error) {
	var ambiguous *candidate
	for _, c := range s.localCandidates(el) {
		ver, err := call.verify(ctx, c.d)
		if err != nil {
			return nil, nil, err
		}
		if ver.Unique {
			return call.resolution(c.d, el, ver, StrategyLocal), nil, nil
		}
		if ver.Index != nil && CanIndex(c.d.Type) {
			s.logger.Debug("Using indexed local descriptor",
				zap.String("source", c.source), zap.Int("nth", *ver.Index), zap.Int("count", ver.Count))
			return call.resolution(WithNth(c.d, *ver.Index), el, ver, StrategyLocal), nil, nil
		}
		if ver.Count > 0 && ambiguous == nil && c.d.Type != schemas.SelectorCSS {
			pick := c
			ambiguous = &pick
		}
		s.logger.Debug("Rejected local candidate",
			zap.String("source", c.source), zap.String("descriptor", String(c.d)), zap.Int("count", ver.Count))
	}
	return nil, ambiguous, nil
}

// parentScope walks the ancestors for a descriptor that isolates one of them.
// A verified-unique ancestor ends the walk. Otherwise the fallbacks rank as
// follows: an indexed semantic parent first, then any non-unique parent that
// is not raw CSS (a shared test id, say), then the nearest CSS parent.
func (s *Synthesizer) parentScope(ctx context.Context, call *synthesisCall) (*schemas.SelectorDescriptor, error) {
	ancestors, err := call.ancestors(ctx, s.opts.MaxAncestorDepth)
	if err != nil {
		return nil, err
	}

	var bestSemantic, bestLoose, bestCSS *schemas.SelectorDescriptor
	for depth, marker := range ancestors {
		anc, err := call.element(ctx, marker)
		if err != nil {
			return nil, err
		}
		if anc.Tag == "body" || anc.Tag == "html" {
			break
		}
		for _, c := range s.parentCandidates(anc) {
			ver, err := call.verifyFor(ctx, c.d, marker)
			if err != nil {
				return nil, err
			}
			if ver.Unique {
				s.logger.Debug("Found unique parent scope",
					zap.Int("depth", depth+1), zap.String("descriptor", String(c.d)))
				d := c.d
				return &d, nil
			}
			switch {
			case ver.Index != nil && CanIndex(c.d.Type) && bestSemantic == nil:
				d := WithNth(c.d, *ver.Index)
				bestSemantic = &d
			case ver.Index == nil:
				// Matches, if any, do not include this ancestor.
			case c.d.Type != schemas.SelectorCSS && bestLoose == nil:
				d := c.d
				bestLoose = &d
			case c.d.Type == schemas.SelectorCSS && bestCSS == nil:
				d := c.d
				bestCSS = &d
			}
		}
	}

	if bestSemantic != nil {
		s.logger.Debug("Using indexed parent scope", zap.String("descriptor", String(*bestSemantic)))
		return bestSemantic, nil
	}
	if bestLoose != nil {
		s.logger.Debug("Using non-unique parent scope", zap.String("descriptor", String(*bestLoose)))
		return bestLoose, nil
	}
	if bestCSS != nil {
		s.logger.Debug("Using structural parent scope", zap.String("descriptor", String(*bestCSS)))
	}
	return bestCSS, nil
}

// parentCandidates lists the scopes tried for one ancestor, strongest first.
// Only exact names are used; a relaxed parent would widen the scope it is
// meant to narrow.
func (s *Synthesizer) parentCandidates(anc *ElementSnapshot) []candidate {
	var out []candidate
	if id := TestIDValue(anc, s.opts.TestIDAttribute); id != "" {
		out = append(out, candidate{"testid", TestID(id)})
	}
	if name := AccessibleName(anc); anc.Role != "" && name != "" {
		out = append(out, candidate{"role", Role(anc.Role, name, true)})
	}
	if label := LabelText(anc); label != "" {
		out = append(out, candidate{"label", Label(label, true)})
	}
	if anc.ID != "" {
		out = append(out, candidate{"id", CSS(idSelector(anc.ID))})
	}
	return out
}

// nested qualifies the ambiguous local descriptor with a parent scope, then
// retries with more generic children under the same parent.
func (s *Synthesizer) nested(ctx context.Context, call *synthesisCall, el *ElementSnapshot, local candidate) (*Resolution, error) {
	parent, err := s.parentScope(ctx, call)
	if err != nil || parent == nil {
		return nil, err
	}

	children := []schemas.SelectorDescriptor{local.d}
	if el.Role != "" {
		children = append(children, Role(el.Role, "", false))
	}
	for _, c := range s.textCandidates(el) {
		children = append(children, c.d)
	}

	for _, child := range children {
		d := WithChild(*parent, child)
		ver, err := call.verify(ctx, d)
		if err != nil {
			return nil, err
		}
		if ver.Unique {
			return call.resolution(d, el, ver, StrategyNested), nil
		}
		if ver.Index != nil && CanIndex(child.Type) {
			return call.resolution(WithInnermostNth(d, *ver.Index), el, ver, StrategyNested), nil
		}
		s.logger.Debug("Rejected nested candidate", zap.String("descriptor", String(d)), zap.Int("count", ver.Count))
	}
	return nil, nil
}

// structural is the terminal fallback. It always returns a descriptor.
func (s *Synthesizer) structural(ctx context.Context, call *synthesisCall, el *ElementSnapshot) (*Resolution, error) {
	for _, c := range structuralCandidates(el) {
		ver, err := call.verify(ctx, c.d)
		if err != nil {
			return nil, err
		}
		if ver.Unique {
			return call.resolution(c.d, el, ver, StrategyStructural), nil
		}
	}

	path, err := s.cssPath(ctx, call, el)
	if err != nil {
		return nil, err
	}
	d := CSS(path)
	ver, err := call.verify(ctx, d)
	if err != nil {
		return nil, err
	}
	if !ver.Unique {
		s.logger.Warn("Structural path did not verify unique",
			zap.String("selector", path), zap.Int("count", ver.Count))
	}
	s.logger.Debug("Falling back to structural path", zap.String("selector", path))
	return call.resolution(d, el, ver, StrategyStructural), nil
}

// cssPath builds a tag:nth-of-type chain up to the nearest ancestor whose id
// verified unique, or up to html.
func (s *Synthesizer) cssPath(ctx context.Context, call *synthesisCall, el *ElementSnapshot) (string, error) {
	// The document root has no ancestors to chain through, and
	// "html > html:nth-of-type(1)" would match nothing.
	if el.Tag == "html" {
		return "html", nil
	}
	segments := []string{nthOfType(el)}
	ancestors, err := call.ancestors(ctx, 0)
	if err != nil {
		return "", err
	}
	anchored := false
	for _, marker := range ancestors {
		anc, err := call.element(ctx, marker)
		if err != nil {
			return "", err
		}
		if anc.ID != "" {
			ver, err := call.verifyFor(ctx, CSS(idSelector(anc.ID)), marker)
			if err != nil {
				return "", err
			}
			if ver.Unique {
				segments = append(segments, idSelector(anc.ID))
				anchored = true
				break
			}
		}
		segments = append(segments, nthOfType(anc))
	}
	if !anchored {
		segments = append(segments, "html")
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return strings.Join(segments, " > "), nil
}

// nthOfType renders el as tag:nth-of-type(i), with the 1-based index among
// same-tag siblings.
func nthOfType(el *ElementSnapshot) string {
	idx := el.NthOfType
	if idx < 1 {
		idx = 1
	}
	return fmt.Sprintf("%s:nth-of-type(%d)", el.Tag, idx)
}

// idSelector uses an attribute selector rather than #id so ids that are not
// valid CSS identifiers (leading digits, colons) still work.
func idSelector(id string) string {
	return `[id="` + cssEscapeString(id) + `"]`
}

func cssEscapeString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// -- per-call memo --

// synthesisCall memoises element facts and verifications for one Resolve.
// Nothing outlives the call.
type synthesisCall struct {
	s         *Synthesizer
	target    string
	elements  map[string]*ElementSnapshot
	ancestry  []string
	fullChain bool
	verified  map[string]Verification
}

func newSynthesisCall(s *Synthesizer, target string) *synthesisCall {
	return &synthesisCall{
		s:        s,
		target:   target,
		elements: make(map[string]*ElementSnapshot),
		verified: make(map[string]Verification),
	}
}

// element reads, and caches, the facts for marker.
func (c *synthesisCall) element(ctx context.Context, marker string) (*ElementSnapshot, error) {
	if el, ok := c.elements[marker]; ok {
		return el, nil
	}
	opCtx, cancel := context.WithTimeout(ctx, c.s.opts.Timeout)
	defer cancel()
	el, err := c.s.page.ElementMetadata(opCtx, marker)
	if err != nil {
		return nil, classifyProbeError(ctx, opCtx, c.s.page, "read element metadata", err)
	}
	c.elements[marker] = el
	return el, nil
}

// ancestors returns up to limit ancestors of the target; zero means all.
func (c *synthesisCall) ancestors(ctx context.Context, limit int) ([]string, error) {
	if c.fullChain || (c.ancestry != nil && limit > 0 && len(c.ancestry) >= limit) {
		if limit > 0 && len(c.ancestry) > limit {
			return c.ancestry[:limit], nil
		}
		return c.ancestry, nil
	}
	opCtx, cancel := context.WithTimeout(ctx, c.s.opts.Timeout)
	defer cancel()
	chain, err := c.s.page.Ancestors(opCtx, c.target, limit)
	if err != nil {
		return nil, classifyProbeError(ctx, opCtx, c.s.page, "read ancestors", err)
	}
	if chain == nil {
		chain = []string{}
	}
	c.ancestry = chain
	c.fullChain = limit == 0 || len(chain) < limit
	return chain, nil
}

func (c *synthesisCall) verify(ctx context.Context, d schemas.SelectorDescriptor) (Verification, error) {
	return c.verifyFor(ctx, d, c.target)
}

// verifyFor verifies d against an expected marker. Results are cached per
// descriptor and marker: the ancestor walk and the nested tier probe the
// same parents more than once.
func (c *synthesisCall) verifyFor(ctx context.Context, d schemas.SelectorDescriptor, expected string) (Verification, error) {
	key := expected + "\x00" + String(d)
	if v, ok := c.verified[key]; ok {
		return v, nil
	}
	v, err := c.s.verifier.Verify(ctx, d, expected)
	if err != nil {
		return Verification{}, err
	}
	c.verified[key] = v
	return v, nil
}

func (c *synthesisCall) resolution(d schemas.SelectorDescriptor, el *ElementSnapshot, ver Verification, strategy string) *Resolution {
	return &Resolution{Descriptor: d, Element: el, Verification: ver, Strategy: strategy}
}
