package render

import (
	"bytes"
	"html"
	"html/template"
	"net/url"
	"strings"

	"github.com/Gresham24/invite-ai/internal/models"
)

// FallbackFields are the stored form values the static view is built from.
type FallbackFields struct {
	Title        string
	Date         string
	Time         string
	Venue        string
	Description  string
	DressCode    string
	RSVPWhatsApp string
	RSVPContact  string
	HeroURL      string
}

// FieldsFrom picks the fallback fields out of a generation request.
func FieldsFrom(req models.GenerationRequest) FallbackFields {
	return FallbackFields{
		Title:        req.Event.Title,
		Date:         req.Event.Date,
		Time:         req.Event.Time,
		Venue:        req.Event.Venue,
		Description:  req.Event.Description,
		DressCode:    req.Event.DressCode,
		RSVPWhatsApp: req.Event.RSVPWhatsApp,
		RSVPContact:  req.Event.RSVPContact,
		HeroURL:      req.Images.Hero,
	}
}

type fallbackData struct {
	FallbackFields
	WhatsAppURL string
	CallURL     template.URL
}

// fallbackView renders the static invitation. A template failure degrades to
// an escaped plain-text card so a fallback is always available.
func fallbackView(f FallbackFields) (view []byte) {
	defer func() {
		if recover() != nil {
			view = plainCard(f)
		}
	}()

	var buf bytes.Buffer
	err := fallbackTemplate.Execute(&buf, fallbackData{
		FallbackFields: f,
		WhatsAppURL:    whatsAppLink(f.RSVPWhatsApp, f.Title),
		CallURL:        telLink(f.RSVPContact),
	})
	if err != nil {
		return plainCard(f)
	}
	return buf.Bytes()
}

func plainCard(f FallbackFields) []byte {
	var b strings.Builder
	b.WriteString(`<main class="invite-fallback"><h1>`)
	b.WriteString(html.EscapeString(f.Title))
	b.WriteString(`</h1><p>`)
	b.WriteString(html.EscapeString(strings.TrimSpace(f.Date + " " + f.Time)))
	b.WriteString(`</p><p>`)
	b.WriteString(html.EscapeString(f.Venue))
	b.WriteString(`</p></main>`)
	return []byte(b.String())
}

// whatsAppLink builds a wa.me link with a pre-filled RSVP message.
func whatsAppLink(number, title string) string {
	digits := keepPhoneChars(number, false)
	if digits == "" {
		return ""
	}
	msg := "Hi! I'd like to RSVP"
	if title != "" {
		msg += " for " + title
	}
	return "https://wa.me/" + digits + "?text=" + url.QueryEscape(msg)
}

// telLink builds a tel: link. Only digits and a leading plus survive, so the
// value is safe to mark as a trusted URL.
func telLink(number string) template.URL {
	n := keepPhoneChars(number, true)
	if n == "" {
		return ""
	}
	return template.URL("tel:" + n)
}

func keepPhoneChars(s string, allowPlus bool) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && allowPlus && i == 0:
			b.WriteRune(r)
		}
	}
	if b.String() == "+" {
		return ""
	}
	return b.String()
}
