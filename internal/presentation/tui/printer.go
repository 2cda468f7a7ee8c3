package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Printer writes lifecycle events to a terminal, one line per event.
// Failures on the overlay channel are rendered as markdown panels.
// It implements ports.Transport.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	profile termenv.Profile
	render  func(string) (string, error)
}

// PrinterOption configures a Printer.
type PrinterOption func(*Printer)

// WithProfile sets the color profile. termenv.Ascii disables colors.
func WithProfile(p termenv.Profile) PrinterOption {
	return func(pr *Printer) {
		pr.profile = p
	}
}

// WithMarkdown renders overlay failures and placeholders with render.
func WithMarkdown(render func(string) (string, error)) PrinterOption {
	return func(pr *Printer) {
		pr.render = render
	}
}

// NewPrinter creates a printer on w. Colors and markdown panels are enabled when
// w is a terminal.
func NewPrinter(w io.Writer, opts ...PrinterOption) *Printer {
	p := &Printer{out: w, profile: termenv.Ascii}
	if IsTerminal(w) {
		p.profile = termenv.EnvColorProfile()
		p.render = NewRenderer()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var eventIcons = map[domain.EventType]string{
	domain.EventReceived: "•",
	domain.EventDeciding: "…",
	domain.EventApplying: "↻",
	domain.EventApplied:  "✓",
	domain.EventRejected: "✗",
	domain.EventError:    "!",
}

func (p *Printer) color(t domain.EventType) termenv.Color {
	switch t {
	case domain.EventApplied:
		return p.profile.Color("#22c55e")
	case domain.EventRejected:
		return p.profile.Color("#ef4444")
	case domain.EventError:
		return p.profile.Color("#f59e0b")
	}
	return p.profile.Color("#94a3b8")
}

// Emit prints e.
func (p *Printer) Emit(ctx context.Context, e domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := fmt.Sprintf("[hmr] %s %s", eventIcons[e.Type], e.String())
	if e.Message != "" && e.Channel != domain.ChannelOverlay {
		line += ": " + e.Message
	}
	if _, err := fmt.Fprintln(p.out, p.profile.String(line).Foreground(p.color(e.Type))); err != nil {
		return err
	}

	for _, r := range e.Reports {
		for _, miss := range r.Missed {
			fmt.Fprintf(p.out, "      %s: slot %q not preserved\n", r.InstanceID, miss)
		}
	}

	if e.Type == domain.EventError && e.Channel == domain.ChannelOverlay {
		return p.panel(FailureMarkdown(e))
	}
	return nil
}

// RenderPlaceholder prints the placeholder panel for a failed instance.
func (p *Printer) RenderPlaceholder(ctx context.Context, rec *domain.PlaceholderRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.panel(PlaceholderMarkdown(rec))
}

func (p *Printer) panel(markdown string) error {
	out := markdown
	if p.render != nil {
		rendered, err := p.render(markdown)
		if err != nil {
			return fmt.Errorf("render overlay: %w", err)
		}
		out = rendered
	}
	_, err := fmt.Fprint(p.out, out)
	return err
}
