package domain

// Apply instructs the coordinator to hot-swap the instances of one boundary module.
type Apply struct {
	// Boundary is the self-accepting module whose instances are replaced.
	// It also names the subtree in lifecycle events.
	Boundary string `json:"boundary"`

	// Modules is the ordered replacement set routed to this boundary.
	Modules []ModuleRecord `json:"modules"`
}

// Decision is the output of the acceptance decision engine for one cycle.
// A reload always wins over any apply of the same cycle.
type Decision struct {
	Reload  bool    `json:"reload"`
	Reason  string  `json:"reason,omitempty"`
	Applies []Apply `json:"applies,omitempty"`

	// Failed lists entries that carried a compile error, by module id.
	Failed map[string]string `json:"failed,omitempty"`

	// Err is the classified cause of a reload, if any.
	Err error `json:"-"`
}

// Subtrees returns the boundary names of the decision in order.
func (d Decision) Subtrees() []string {
	out := make([]string, 0, len(d.Applies))
	for _, a := range d.Applies {
		out = append(out, a.Boundary)
	}
	return out
}
