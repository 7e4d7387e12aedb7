// Package render turns sanitized component source into documents a browser
// can show without trusting that source.
//
// Generated code only ever runs inside the frame document, which is served
// with a sandbox CSP and embedded with sandbox="allow-scripts" so it gets an
// opaque origin: no cookies, no storage, no access to the host page. The host
// page keeps a static copy of the invitation built from the stored form
// fields and swaps to it when the frame reports an error or stays silent.
package render

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/metrics"
	"github.com/Gresham24/invite-ai/internal/models"
	"github.com/Gresham24/invite-ai/internal/sanitize"
)

// State of one render attempt
type State int

const (
	Pending State = iota
	Rendered
	Fallback
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Rendered:
		return "rendered"
	case Fallback:
		return "fallback"
	}
	return "unknown"
}

// Fallback reasons produced by the renderer itself.
const (
	ReasonNoCode      = "no code"
	ReasonNoComponent = "no component declared"
	ReasonSealBroken  = "artifact seal mismatch"
)

// DefaultRuntimeScripts load the UI runtime inside the frame.
var DefaultRuntimeScripts = []string{
	"https://unpkg.com/react@18.3.1/umd/react.production.min.js",
	"https://unpkg.com/react-dom@18.3.1/umd/react-dom.production.min.js",
	"https://unpkg.com/@babel/standalone@7.26.4/babel.min.js",
	"https://cdn.tailwindcss.com",
}

// DefaultReadyTimeout is how long the host page waits for the frame.
const DefaultReadyTimeout = 8 * time.Second

// Meta is the link-preview metadata of an invitation page.
type Meta struct {
	Title       string
	Description string
	Image       string
}

// Output is the result of one render attempt. Fallback is always populated;
// Frame is only set when State is Rendered.
type Output struct {
	State    State
	Reason   string
	Frame    []byte
	Fallback []byte
	Meta     Meta
}

// Renderer builds frame and host documents. It is safe for concurrent use.
type Renderer struct {
	filter       *sanitize.Filter
	scripts      []string
	readyTimeout time.Duration
	frameCSP     string
	logger       *zap.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithFilter sets the filter used as the second gate.
func WithFilter(f *sanitize.Filter) Option {
	return func(r *Renderer) {
		r.filter = f
	}
}

// WithRuntimeScripts replaces the runtime script URLs.
func WithRuntimeScripts(urls []string) Option {
	return func(r *Renderer) {
		if len(urls) > 0 {
			r.scripts = urls
		}
	}
}

// WithReadyTimeout sets how long the host waits for invite:ready.
func WithReadyTimeout(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.readyTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		filter:       sanitize.New(),
		scripts:      DefaultRuntimeScripts,
		readyTimeout: DefaultReadyTimeout,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.frameCSP = frameCSP(r.scripts)
	return r
}

// FrameCSP is the Content-Security-Policy header value for frame documents.
func (r *Renderer) FrameCSP() string {
	return r.frameCSP
}

// Render produces the documents for code. It never panics: any failure,
// including a panic while building the frame, ends in the Fallback state.
func (r *Renderer) Render(code string, fields FallbackFields) (out *Output) {
	out = &Output{State: Pending, Meta: metaFor(fields)}

	defer func() {
		if rec := recover(); rec != nil {
			r.fallback(out, fmt.Sprintf("render panic: %v", rec))
		}
		metrics.RenderOutcomes.WithLabelValues(out.State.String()).Inc()
	}()

	out.Fallback = fallbackView(fields)

	if strings.TrimSpace(code) == "" {
		r.fallback(out, ReasonNoCode)
		return out
	}
	if verdict := r.filter.Check(code); !verdict.Safe {
		r.fallback(out, verdict.Reason)
		return out
	}

	source := prepareSource(code)
	if !declaresComponent(source) {
		r.fallback(out, ReasonNoComponent)
		return out
	}

	var buf bytes.Buffer
	if err := frameTemplate.Execute(&buf, frameData{
		Scripts: r.scripts,
		Source:  source,
		Title:   out.Meta.Title,
	}); err != nil {
		r.fallback(out, fmt.Sprintf("frame template: %v", err))
		return out
	}

	out.Frame = buf.Bytes()
	out.State = Rendered
	return out
}

// RenderArtifact renders a stored artifact. Unsafe artifacts go straight to
// the fallback and their raw text is never looked at.
func (r *Renderer) RenderArtifact(a models.GeneratedArtifact, fields FallbackFields) *Output {
	if !a.IsSafe {
		out := &Output{State: Pending, Meta: metaFor(fields), Fallback: fallbackView(fields)}
		reason := a.Reason()
		if reason == "" {
			reason = "unsafe artifact"
		}
		r.fallback(out, reason)
		metrics.RenderOutcomes.WithLabelValues(out.State.String()).Inc()
		return out
	}
	return r.Render(a.SanitizedCode, fields)
}

// Unverified builds a fallback-only output for an artifact whose seal failed.
func (r *Renderer) Unverified(fields FallbackFields) *Output {
	out := &Output{State: Pending, Meta: metaFor(fields), Fallback: fallbackView(fields)}
	r.fallback(out, ReasonSealBroken)
	metrics.RenderOutcomes.WithLabelValues(out.State.String()).Inc()
	return out
}

func (r *Renderer) fallback(out *Output, reason string) {
	out.State = Fallback
	out.Reason = reason
	out.Frame = nil
	if out.Fallback == nil {
		out.Fallback = fallbackView(FallbackFields{})
	}
	r.logger.Info("Rendering fallback", zap.String("reason", reason))
}

func metaFor(f FallbackFields) Meta {
	title := "You're Invited!"
	if f.Title != "" {
		title = f.Title + " - You're Invited!"
	}
	return Meta{Title: title, Description: f.Description, Image: f.HeroURL}
}

// frameCSP allows the runtime origins and nothing else to load script, and
// blocks all network access from the component.
func frameCSP(scripts []string) string {
	seen := map[string]bool{}
	var origins []string
	for _, s := range scripts {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			continue
		}
		origin := u.Scheme + "://" + u.Host
		if !seen[origin] {
			seen[origin] = true
			origins = append(origins, origin)
		}
	}
	sort.Strings(origins)
	allowed := strings.Join(origins, " ")

	return strings.Join([]string{
		"sandbox allow-scripts",
		"default-src 'none'",
		"script-src 'unsafe-inline' 'unsafe-eval' " + allowed,
		"style-src 'unsafe-inline' " + allowed,
		"img-src https: data: blob:",
		"font-src https: data:",
		"connect-src 'none'",
		"form-action 'none'",
		"base-uri 'none'",
		"frame-ancestors 'self'",
	}, "; ")
}
