// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/quill/lib/content"
	"github.com/bureau-foundation/quill/lib/streamjson"
)

// Palette for notification output. Values are xterm-256 indexes.
var (
	colorFaint    = lipgloss.Color("245")
	colorActivity = lipgloss.Color("220")
	colorSuccess  = lipgloss.Color("114")
	colorFailure  = lipgloss.Color("196")
	colorHeading  = lipgloss.Color("75")
)

// Printer renders run notifications on a terminal (or plain text when
// the profile is termenv.Ascii). Its Notify method is a
// docagent.NotifyFunc.
type Printer struct {
	out     io.Writer
	width   int
	profile termenv.Profile

	faint    lipgloss.Style
	activity lipgloss.Style
	success  lipgloss.Style
	failure  lipgloss.Style
	heading  lipgloss.Style

	mu sync.Mutex
	// midLine is true when streamed text ended without a newline.
	midLine bool
}

// NewPrinter returns a Printer writing to out. width bounds activity
// lines; zero means no limit.
func NewPrinter(out io.Writer, profile termenv.Profile, width int) *Printer {
	renderer := lipgloss.NewRenderer(out, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)
	return &Printer{
		out:      out,
		width:    width,
		profile:  profile,
		faint:    renderer.NewStyle().Foreground(colorFaint),
		activity: renderer.NewStyle().Foreground(colorActivity),
		success:  renderer.NewStyle().Foreground(colorSuccess).Bold(true),
		failure:  renderer.NewStyle().Foreground(colorFailure),
		heading:  renderer.NewStyle().Foreground(colorHeading).Bold(true),
	}
}

// DetectProfile returns the colour profile for out, honouring NO_COLOR
// and CLICOLOR_FORCE.
func DetectProfile(out io.Writer) termenv.Profile {
	return termenv.NewOutput(out).EnvColorProfile()
}

// Notify prints one notification.
func (p *Printer) Notify(notification streamjson.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch notification.Kind {
	case streamjson.NotifyText:
		io.WriteString(p.out, notification.Text)
		if notification.Text != "" {
			p.midLine = !strings.HasSuffix(notification.Text, "\n")
		}
	case streamjson.NotifyMessage:
		p.line(notification.Text)
	case streamjson.NotifyActivity:
		p.line(p.truncate(p.activity.Render(notification.Text)))
	case streamjson.NotifyComplete:
		if strings.HasPrefix(notification.Text, "Completed") {
			p.line(p.success.Render(notification.Text))
		} else {
			p.line(p.failure.Render(notification.Text))
		}
	case streamjson.NotifyStderr:
		p.line(p.failure.Render(notification.Text))
	case streamjson.NotifySession:
		p.line(p.faint.Render("session " + notification.Text))
	case streamjson.NotifyRaw:
		p.line(p.truncate(p.faint.Italic(true).Render(notification.Text)))
	default:
		p.line(p.faint.Render(notification.Text))
	}
}

// line writes text on a line of its own.
func (p *Printer) line(text string) {
	if p.midLine {
		io.WriteString(p.out, "\n")
		p.midLine = false
	}
	io.WriteString(p.out, strings.TrimRight(text, "\n")+"\n")
}

func (p *Printer) truncate(text string) string {
	if p.width <= 0 {
		return text
	}
	return ansi.Truncate(text, p.width, "…")
}

// Finish ends a line left open by streamed text.
func (p *Printer) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.midLine {
		io.WriteString(p.out, "\n")
		p.midLine = false
	}
}

// Outline prints the heading outline of document, indented by level.
func (p *Printer) Outline(document string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	headings := content.Outline(document)
	if len(headings) == 0 {
		return
	}
	p.line(p.heading.Render("Outline"))
	for _, heading := range headings {
		indent := strings.Repeat("  ", max(heading.Level-1, 0))
		p.line(p.truncate(fmt.Sprintf("  %s%s", indent, heading.Text)))
	}
}

// Document prints document, syntax-highlighted as markdown when the
// profile has colour.
func (p *Printer) Document(document string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profile != termenv.Ascii {
		var buffer bytes.Buffer
		if err := quick.Highlight(&buffer, document, "markdown", "terminal256", "monokai"); err == nil {
			p.line(buffer.String())
			return
		}
	}
	p.line(document)
}
