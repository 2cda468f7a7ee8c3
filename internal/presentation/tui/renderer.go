package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// The style follows the terminal background.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return r.Render
}

// FailureMarkdown renders a failure event as an overlay panel.
func FailureMarkdown(e domain.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s in `%s`\n\n", title(e.Kind), e.Subject)
	sb.WriteString("```\n")
	sb.WriteString(strings.TrimSpace(e.Message))
	sb.WriteString("\n```\n\n")
	fmt.Fprintf(&sb, "_cycle %s, reported on the %s channel_\n", e.Cycle, e.Channel)
	return sb.String()
}

// PlaceholderMarkdown renders the stand-in shown for an instance that failed to construct.
func PlaceholderMarkdown(p *domain.PlaceholderRecord) string {
	var sb strings.Builder
	f := p.Failure
	fmt.Fprintf(&sb, "## `%s` failed to mount\n\n", p.InstanceID)
	fmt.Fprintf(&sb, "**%s** `%s@%d`\n\n", title(f.Kind), f.Impl.ModuleID, f.Impl.Version)
	sb.WriteString("```\n")
	sb.WriteString(strings.TrimSpace(f.Message))
	sb.WriteString("\n```\n\n")

	if p.Snapshot != nil && len(p.Snapshot.Slots) > 0 {
		sb.WriteString("| retained slot | value |\n|---|---|\n")
		keys := make([]string, 0, len(p.Snapshot.Slots))
		for k := range p.Snapshot.Slots {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "| %s | `%v` |\n", k, p.Snapshot.Slots[k])
		}
		sb.WriteString("\n")
	}
	if p.LastGood != nil {
		fmt.Fprintf(&sb, "_last good: %s@%d. Fix the module and save to retry._\n", p.LastGood.ModuleID, p.LastGood.Version)
	} else {
		sb.WriteString("_Fix the module and save to retry._\n")
	}
	return sb.String()
}

func title(k domain.ErrorKind) string {
	if k == "" {
		return "Error"
	}
	s := strings.ReplaceAll(string(k), "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}
