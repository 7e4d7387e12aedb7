// Package prompt turns an event description into the instruction text sent to
// the generation model.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Gresham24/invite-ai/internal/models"
)

// EventType classifies the event so the prompt can set a fitting tone.
type EventType string

const (
	Birthday   EventType = "birthday"
	Wedding    EventType = "wedding"
	Corporate  EventType = "corporate"
	BabyShower EventType = "babyShower"
	Graduation EventType = "graduation"
)

// Template carries the per-type styling hints.
type Template struct {
	Tone       string
	Elements   []string
	Colors     string
	Animations string
}

var templates = map[EventType]Template{
	Birthday: {
		Tone:       "celebratory and personal",
		Elements:   []string{"countdown timer", "age milestone", "party details", "gift preferences"},
		Colors:     "vibrant and festive",
		Animations: "confetti, floating balloons, sparkles",
	},
	Wedding: {
		Tone:       "elegant and romantic",
		Elements:   []string{"couple names", "ceremony details", "reception info", "dress code", "registry"},
		Colors:     "soft and sophisticated",
		Animations: "gentle fades, subtle parallax, rose petals",
	},
	Corporate: {
		Tone:       "professional and modern",
		Elements:   []string{"agenda", "speakers", "registration", "venue details"},
		Colors:     "brand colors or neutral professional",
		Animations: "smooth transitions, minimal effects",
	},
	BabyShower: {
		Tone:       "warm and joyful",
		Elements:   []string{"parent names", "registry", "games", "theme"},
		Colors:     "soft pastels",
		Animations: "gentle bounces, floating clouds, stars",
	},
	Graduation: {
		Tone:       "proud and accomplished",
		Elements:   []string{"graduate name", "school", "degree", "celebration details"},
		Colors:     "school colors or classic",
		Animations: "confetti, cap toss effect",
	},
}

// TemplateFor returns the styling hints for t, defaulting to birthday.
func TemplateFor(t EventType) Template {
	if tpl, ok := templates[t]; ok {
		return tpl
	}
	return templates[Birthday]
}

// DetectEventType guesses the event type from keywords in the title and
// description. Birthday is the default.
func DetectEventType(title, description string) EventType {
	combined := strings.ToLower(title + " " + description)
	switch {
	case containsAny(combined, "birthday", "bday"):
		return Birthday
	case containsAny(combined, "wedding", "marriage"):
		return Wedding
	case containsAny(combined, "baby", "shower"):
		return BabyShower
	case containsAny(combined, "corporate", "conference", "seminar"):
		return Corporate
	case containsAny(combined, "graduation", "graduate"):
		return Graduation
	}
	return Birthday
}

var (
	titleNumber = regexp.MustCompile(`\d+`)
	ordinal     = regexp.MustCompile(`\d+(st|nd|rd|th)`)
)

// IsMilestone reports whether the event marks a numbered occasion: digits in
// the title or an ordinal such as "40th" in the description.
func IsMilestone(title, description string) bool {
	return titleNumber.MatchString(title) || ordinal.MatchString(description)
}

// DefaultStyle is used when the form leaves the theme empty.
const DefaultStyle = "elegant"

// Build renders the generation prompt for req. The result depends only on req.
func Build(req models.GenerationRequest) string {
	ev := req.Event
	img := req.Images

	eventType := DetectEventType(ev.Title, ev.Description)
	tpl := TemplateFor(eventType)
	milestone := IsMilestone(ev.Title, ev.Description)
	style := ev.Theme
	if style == "" {
		style = DefaultStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a React component for a mobile-first %s invitation landing page with a %s design style.\n\n", eventType, style)

	b.WriteString("EVENT CONTEXT:\n")
	fmt.Fprintf(&b, "- Event Type: %s (%s)\n", eventType, tpl.Tone)
	fmt.Fprintf(&b, "- Title: %s\n", ev.Title)
	fmt.Fprintf(&b, "- Date: %s\n", ev.Date)
	fmt.Fprintf(&b, "- Time: %s\n", ev.Time)
	fmt.Fprintf(&b, "- Venue: %s\n", ev.Venue)
	optionalLine(&b, "Dress Code", ev.DressCode)
	optionalLine(&b, "Theme", ev.Theme)
	optionalLine(&b, "Color Scheme", ev.ColorScheme)
	if milestone {
		b.WriteString("- Special Milestone: Yes\n")
	}

	b.WriteString("\nDESCRIPTION:\n")
	b.WriteString(ev.Description)
	b.WriteString("\n\n")

	b.WriteString("DESIGN SPECIFICATIONS:\n")
	fmt.Fprintf(&b, "- Style: %s design with %s colors\n", style, tpl.Colors)
	b.WriteString("- Typography: Modern, readable fonts\n")
	fmt.Fprintf(&b, "- Animation Style: %s\n", tpl.Animations)
	fmt.Fprintf(&b, "- Key Elements: %s\n\n", strings.Join(tpl.Elements, ", "))

	writeSections(&b, ev, img, milestone)
	writeTechnical(&b)
	writeImages(&b, img)
	writeSafety(&b)

	b.WriteString("Generate a complete, production-ready React component that creates an unforgettable digital invitation.\n")
	b.WriteString("Respond with the component source only, in a single ```jsx code block.")

	return b.String()
}

func writeSections(b *strings.Builder, ev models.EventFields, img models.ImageRefs, milestone bool) {
	b.WriteString("REQUIRED SECTIONS:\n")

	b.WriteString("1. Hero Section\n")
	if img.Hero != "" {
		fmt.Fprintf(b, "   - Use the provided hero image as background: %s\n", img.Hero)
	} else {
		b.WriteString("   - Create gradient or pattern background\n")
	}
	b.WriteString("   - Event title prominently displayed\n")
	b.WriteString("   - Date and time\n")
	if milestone {
		b.WriteString("   - Highlight the milestone number\n")
	}

	b.WriteString("2. Event Details Section\n")
	b.WriteString("   - Engaging description\n   - Key highlights\n   - What to expect\n")

	b.WriteString("3. Countdown Timer\n")
	b.WriteString("   - Dynamic countdown to the event date and time, driven by the useNow hook\n")
	b.WriteString("   - Elegant display with days, hours, minutes, seconds\n")
	b.WriteString("   - Zero state message when the event arrives\n")

	b.WriteString("4. Venue/Location Section\n")
	b.WriteString("   - Venue name and address\n   - Directions link\n")

	n := 5
	if ev.DressCode != "" {
		fmt.Fprintf(b, "%d. Dress Code Section\n", n)
		b.WriteString("   - Clear dress code instructions\n   - Color swatches if relevant\n")
		n++
	}

	fmt.Fprintf(b, "%d. RSVP Section\n", n)
	b.WriteString("   - Clear call-to-action\n")
	if ev.RSVPWhatsApp != "" {
		fmt.Fprintf(b, "   - WhatsApp link (https://wa.me/...) with a pre-filled message to %s\n", ev.RSVPWhatsApp)
	}
	if ev.RSVPContact != "" {
		fmt.Fprintf(b, "   - Call link (tel:) for %s\n", ev.RSVPContact)
	}
	b.WriteString("\n")
}

func writeTechnical(b *strings.Builder) {
	b.WriteString("TECHNICAL REQUIREMENTS:\n")
	b.WriteString("- Single self-contained component declared as `function InviteComponent()`\n")
	b.WriteString("- Mobile-first responsive design (375px width)\n")
	b.WriteString("- Use Tailwind CSS classes for all styling\n")
	b.WriteString("- Accessibility considerations (ARIA labels, semantic HTML)\n")
	b.WriteString("- Interactivity with React hooks: useState, useEffect, useMemo, useRef, useCallback\n\n")
}

func writeImages(b *strings.Builder, img models.ImageRefs) {
	if img.Empty() {
		return
	}
	b.WriteString("IMAGES TO INCORPORATE:\n")
	if img.Hero != "" {
		fmt.Fprintf(b, "- Hero background: %s\n", img.Hero)
	}
	if img.Logo != "" {
		fmt.Fprintf(b, "- Event logo (place in hero and footer): %s\n", img.Logo)
	}
	for _, u := range img.Theme {
		fmt.Fprintf(b, "- Theme image: %s\n", u)
	}
	for _, u := range img.Additional {
		fmt.Fprintf(b, "- Additional image: %s\n", u)
	}
	b.WriteString("\n")
}

// writeSafety mirrors the sanitization denylist so compliant output passes it.
func writeSafety(b *strings.Builder) {
	b.WriteString("RUNTIME CONSTRAINTS (output that breaks these is discarded):\n")
	b.WriteString("- React, useState, useEffect, useMemo, useRef, useCallback and useNow are already in scope; do not import anything\n")
	b.WriteString("- Do not use setTimeout, setInterval or setImmediate; call useNow(1000) to get a Date that updates every second\n")
	b.WriteString("- Do not reference window, document, globalThis, global, self or process, and keep those words out of visible text as well\n")
	b.WriteString("- Do not use eval, the Function constructor, require or dynamic import()\n")
	b.WriteString("- Do not use fetch, XMLHttpRequest or WebSocket\n")
	b.WriteString("- Do not add an export statement\n\n")
}

func optionalLine(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
