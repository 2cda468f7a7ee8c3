package graph

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/aretw0/hotswap/pkg/domain"
)

// GraphOverlay contains the live instance table to visualize on the graph.
type GraphOverlay struct {
	Instances []domain.InstanceView
}

// GenerateMermaid produces a Mermaid flowchart of the module graph.
// Edges point from a module to the modules importing it, the direction an
// update travels. Shapes:
// - Root (no dependents): ((Circle))
// - Self-accepting boundary: [[Subroutine]]
// - Default: [Rectangle]
// Edges crossing directories are dotted. With an overlay, modules are annotated
// with their live instance count and placeholders are highlighted.
func GenerateMermaid(records []domain.ModuleRecord, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	counts := make(map[string]int)
	failed := make(map[string]bool)
	if overlay != nil {
		for _, in := range overlay.Instances {
			switch in.Status {
			case domain.StatusLive:
				counts[in.ModuleID]++
			case domain.StatusPlaceholder:
				failed[in.ModuleID] = true
			}
		}
	}

	sorted := make([]domain.ModuleRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, rec := range sorted {
		safeID := sanitizeMermaidID(rec.ID)

		opener, closer := "[", "]"
		switch {
		case rec.IsRoot():
			opener, closer = "((", "))"
		case rec.AcceptsSelf:
			opener, closer = "[[", "]]"
		}

		label := rec.ID
		if rec.Version > 0 {
			label = fmt.Sprintf("%s <br/> v%d", rec.ID, rec.Version)
		}
		if n := counts[rec.ID]; n > 0 {
			label = fmt.Sprintf("%s <br/> %d live", label, n)
		}
		label = strings.ReplaceAll(label, "\"", "'")
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		deps := append([]string(nil), rec.Dependents...)
		sort.Strings(deps)
		for _, dep := range deps {
			arrow := "-->"
			if path.Dir(rec.ID) != path.Dir(dep) {
				arrow = "-.->"
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, sanitizeMermaidID(dep)))
		}
	}

	sb.WriteString("\n    %% Styles\n")
	sb.WriteString("    classDef boundary fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	for _, rec := range sorted {
		if rec.AcceptsSelf {
			sb.WriteString(fmt.Sprintf("    class %s boundary;\n", sanitizeMermaidID(rec.ID)))
		}
	}

	if len(failed) > 0 {
		sb.WriteString("    classDef failed fill:#fee2e2,stroke:#b91c1c,stroke-width:4px,color:#000;\n")
		ids := make([]string, 0, len(failed))
		for id := range failed {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			sb.WriteString(fmt.Sprintf("    class %s failed;\n", sanitizeMermaidID(id)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "@", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
