package render

import (
	"bytes"
	"html/template"

	"go.uber.org/zap"
)

// HostCSP is the Content-Security-Policy header value for host pages.
const HostCSP = "default-src 'self'; script-src 'unsafe-inline'; style-src 'unsafe-inline'; img-src https: data:; frame-src 'self'; connect-src 'none'; base-uri 'none'; form-action 'none'"

// Host builds the page shown at the invite URL. A rendered output embeds
// frameURL in a sandboxed iframe with the fallback kept hidden beside it; a
// fallback output shows the static view only and carries no script.
func (r *Renderer) Host(out *Output, frameURL string) []byte {
	data := hostData{
		Meta:           out.Meta,
		Framed:         out.State == Rendered && frameURL != "",
		FrameURL:       frameURL,
		Fallback:       template.HTML(out.Fallback),
		ReadyTimeoutMs: r.readyTimeout.Milliseconds(),
	}

	var buf bytes.Buffer
	if err := hostTemplate.Execute(&buf, data); err != nil {
		r.logger.Error("Failed to render host page", zap.Error(err))
		return out.Fallback
	}
	return buf.Bytes()
}

// NotFoundPage is served for unknown or deleted invites.
func (r *Renderer) NotFoundPage() []byte {
	out := &Output{
		State:    Fallback,
		Meta:     Meta{Title: "Invite Not Found"},
		Fallback: []byte(`<main class="invite-fallback"><h1>Invite Not Found</h1><p>This invitation does not exist or has been removed.</p></main>`),
	}
	return r.Host(out, "")
}
