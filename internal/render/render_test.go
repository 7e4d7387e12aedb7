package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Gresham24/invite-ai/internal/models"
)

var fields = FallbackFields{
	Title:        "Summer Party",
	Date:         "2026-07-04",
	Time:         "18:00",
	Venue:        "Rooftop Garden",
	Description:  "Food, friends and fireworks.",
	RSVPWhatsApp: "+27 82 000 0000",
	RSVPContact:  "+27 83 000 0000",
}

const validCode = `function InviteComponent() {
  const now = useNow(1000);
  return <div className="p-4">{now.toISOString()}</div>;
}`

func assertFallbackShowsFields(t *testing.T, out *Output) {
	t.Helper()
	for _, want := range []string{"Summer Party", "2026-07-04", "Rooftop Garden"} {
		if !bytes.Contains(out.Fallback, []byte(want)) {
			t.Errorf("Fallback view missing %q", want)
		}
	}
}

func TestRender_ValidComponent(t *testing.T) {
	r := New()
	out := r.Render(validCode, fields)

	if out.State != Rendered {
		t.Fatalf("Expected Rendered, got %s (%s)", out.State, out.Reason)
	}
	frame := string(out.Frame)
	for _, want := range []string{"InviteComponent", "invite:ready", "invite:error", "useNow", DefaultRuntimeScripts[0], "Summer Party - You"} {
		if !strings.Contains(frame, want) {
			t.Errorf("Frame missing %q", want)
		}
	}
	assertFallbackShowsFields(t, out)
}

func TestRender_FallbackCases(t *testing.T) {
	r := New()
	tests := []struct {
		name   string
		code   string
		reason string
	}{
		{"empty", "", ReasonNoCode},
		{"whitespace", "  \n\t", ReasonNoCode},
		{"prose only", "Sorry, I cannot build that invitation right now.", ReasonNoComponent},
		{"no recognized component", "const Banner = () => <div/>;", ReasonNoComponent},
		{"denylisted", "function InviteComponent() { eval(userInput); return null; }", "forbidden construct: eval"},
		{"too long", "function InviteComponent() { return null; }" + strings.Repeat(" ", 60000), "exceeds length limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Render(tt.code, fields)
			if out == nil {
				t.Fatal("Render returned nil")
			}
			if out.State != Fallback {
				t.Fatalf("Expected Fallback, got %s", out.State)
			}
			if out.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", out.Reason, tt.reason)
			}
			if out.Frame != nil {
				t.Error("Fallback output should not carry a frame")
			}
			assertFallbackShowsFields(t, out)
		})
	}
}

func TestRender_ThrowingComponentStillProducesOutput(t *testing.T) {
	// Runtime errors happen in the browser; the frame reports them with invite:error.
	out := New().Render(`function InviteComponent() { throw new Error("boom"); }`, fields)
	if out.State != Rendered {
		t.Fatalf("Expected Rendered, got %s", out.State)
	}
	if !bytes.Contains(out.Frame, []byte("componentDidCatch")) {
		t.Error("Frame should install an error boundary")
	}
}

func TestRender_SourceCannotBreakOutOfScript(t *testing.T) {
	code := `function InviteComponent() { return "</script><script>alert(1)</script>"; }`
	out := New().Render(code, fields)
	if out.State != Rendered {
		t.Fatalf("Expected Rendered, got %s", out.State)
	}
	if bytes.Contains(out.Frame, []byte("</script><script>alert(1)")) {
		t.Error("Source must be embedded as an escaped string")
	}
}

func TestRenderArtifact(t *testing.T) {
	r := New()

	reason := "forbidden construct: eval"
	unsafe := models.GeneratedArtifact{IsSafe: false, RejectionReason: &reason, RawText: validCode}
	out := r.RenderArtifact(unsafe, fields)
	if out.State != Fallback || out.Reason != reason {
		t.Errorf("Unsafe artifact should fall back with its reason, got %s %q", out.State, out.Reason)
	}

	safe := models.GeneratedArtifact{IsSafe: true, SanitizedCode: validCode}
	if out := r.RenderArtifact(safe, fields); out.State != Rendered {
		t.Errorf("Safe artifact should render, got %s (%s)", out.State, out.Reason)
	}

	if out := r.Unverified(fields); out.State != Fallback || out.Reason != ReasonSealBroken {
		t.Errorf("Unexpected unverified output %s %q", out.State, out.Reason)
	}
}

func TestFallbackEscapesFields(t *testing.T) {
	out := New().Render("", FallbackFields{Title: `<img src=x onerror=alert(1)>`, Venue: "A & B"})
	if bytes.Contains(out.Fallback, []byte("<img src=x")) {
		t.Error("Title must be HTML-escaped")
	}
	if !bytes.Contains(out.Fallback, []byte("A &amp; B")) {
		t.Error("Venue must be HTML-escaped")
	}
}

func TestFallbackRSVPLinks(t *testing.T) {
	out := New().Render("", fields)
	if !bytes.Contains(out.Fallback, []byte("https://wa.me/27820000000")) {
		t.Errorf("Missing WhatsApp link in %s", out.Fallback)
	}
	if !bytes.Contains(out.Fallback, []byte(`href="tel:+27830000000"`)) {
		t.Errorf("Missing call link in %s", out.Fallback)
	}
}

func TestHost_Rendered(t *testing.T) {
	r := New()
	out := r.Render(validCode, fields)
	page := string(r.Host(out, "/invite/abc/frame"))

	for _, want := range []string{
		`<iframe id="invite-frame" src="/invite/abc/frame" sandbox="allow-scripts"`,
		`<div id="invite-fallback" hidden>`,
		"invite:ready",
		"event.source !== frame.contentWindow",
		"8000",
		`property="og:title"`,
		"Summer Party - You&#39;re Invited!",
		"Food, friends and fireworks.",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("Host page missing %q", want)
		}
	}
	if strings.Contains(page, "allow-same-origin") {
		t.Error("Frame must not be same-origin")
	}
	if strings.Contains(page, "useNow") {
		t.Error("Host page must not contain artifact code")
	}
}

func TestHost_Fallback(t *testing.T) {
	r := New()
	out := r.Render("function InviteComponent() { eval(userInput); }", fields)
	page := string(r.Host(out, "/invite/abc/frame"))

	if strings.Contains(page, "<iframe") || strings.Contains(page, "<script") {
		t.Error("Fallback host page should contain neither a frame nor script")
	}
	for _, want := range []string{"Summer Party", "2026-07-04", "Rooftop Garden"} {
		if !strings.Contains(page, want) {
			t.Errorf("Fallback page missing %q", want)
		}
	}
}

func TestHost_OpenGraphImage(t *testing.T) {
	f := fields
	f.HeroURL = "https://cdn.example/hero.jpg"
	r := New()
	page := string(r.Host(r.Render("", f), ""))
	if !strings.Contains(page, `<meta property="og:image" content="https://cdn.example/hero.jpg">`) {
		t.Error("Expected og:image for the hero")
	}
}

func TestNotFoundPage(t *testing.T) {
	page := string(New().NotFoundPage())
	if !strings.Contains(page, "<title>Invite Not Found</title>") {
		t.Errorf("Unexpected not-found page: %s", page)
	}
}

func TestFrameCSP(t *testing.T) {
	r := New(WithRuntimeScripts([]string{"https://cdn.example/react.js", "https://cdn.example/dom.js", "https://other.example/x.js"}))
	csp := r.FrameCSP()
	for _, want := range []string{"sandbox allow-scripts", "connect-src 'none'", "https://cdn.example https://other.example"} {
		if !strings.Contains(csp, want) {
			t.Errorf("CSP missing %q: %s", want, csp)
		}
	}
	if strings.Count(csp, "https://cdn.example ") != 2 {
		t.Errorf("Origins should be deduplicated: %s", csp)
	}
}

func TestWithReadyTimeout(t *testing.T) {
	r := New(WithReadyTimeout(1500 * 1e6))
	out := r.Render(validCode, fields)
	if !strings.Contains(string(r.Host(out, "/f")), "1500") {
		t.Error("Expected custom ready timeout in host script")
	}
}

func TestPrepareSource(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"drops imports",
			"import React, { useState } from 'react';\nimport './styles.css';\nfunction App() {}",
			"\n\nfunction App() {}",
		},
		{
			"export default function",
			"export default function InviteComponent() {}",
			"function InviteComponent() {}",
		},
		{
			"anonymous default function",
			"export default function () {}",
			"function InviteComponent() {}",
		},
		{
			"default arrow",
			"export default () => null;",
			"const InviteComponent = () => null;",
		},
		{
			"trailing default name",
			"const App = () => null;\nexport default App;",
			"const App = () => null;\n",
		},
		{
			"named export",
			"export const Component = () => null;",
			"const Component = () => null;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := prepareSource(tt.in); got != tt.want {
				t.Errorf("prepareSource() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	if Pending.String() != "pending" || Rendered.String() != "rendered" || Fallback.String() != "fallback" {
		t.Error("Unexpected state names")
	}
}
