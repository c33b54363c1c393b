package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/petal/internal/module"
)

// Dependencies is the producer/consumer graph derived from module labels.
// Module A feeds module B when A.OutLabel equals B.InLabel. Modules with
// no InLabel are roots. Cycles and shared labels are allowed; eligibility
// is decided by store contents, not by traversal order.
type Dependencies struct {
	specs      map[string]module.Spec
	names      []string
	upstream   map[string][]string
	downstream map[string][]string
}

// Resolve builds the dependency graph for specs.
func Resolve(specs []module.Spec) *Dependencies {
	d := &Dependencies{
		specs:      make(map[string]module.Spec, len(specs)),
		upstream:   make(map[string][]string),
		downstream: make(map[string][]string),
	}

	producers := make(map[string][]string) // out label -> module names
	for _, s := range specs {
		d.specs[s.Name] = s
		d.names = append(d.names, s.Name)
		producers[s.OutLabel] = append(producers[s.OutLabel], s.Name)
	}
	sort.Strings(d.names)

	for _, name := range d.names {
		s := d.specs[name]
		if s.IsSource() {
			continue
		}
		ups := append([]string(nil), producers[s.InLabel]...)
		sort.Strings(ups)
		d.upstream[name] = ups
		for _, up := range ups {
			d.downstream[up] = append(d.downstream[up], name)
		}
	}
	for name := range d.downstream {
		sort.Strings(d.downstream[name])
	}
	return d
}

// Upstream returns the modules producing name's input label.
func (d *Dependencies) Upstream(name string) []string {
	return d.upstream[name]
}

// Downstream returns the modules consuming name's output label.
func (d *Dependencies) Downstream(name string) []string {
	return d.downstream[name]
}

// Roots returns the source modules, sorted.
func (d *Dependencies) Roots() []string {
	var roots []string
	for _, name := range d.names {
		if d.specs[name].IsSource() {
			roots = append(roots, name)
		}
	}
	return roots
}

// Orphans returns consumers whose input label no registered module
// produces. They become eligible only if the label appears some other way.
func (d *Dependencies) Orphans() []string {
	var orphans []string
	for _, name := range d.names {
		if !d.specs[name].IsSource() && len(d.upstream[name]) == 0 {
			orphans = append(orphans, name)
		}
	}
	return orphans
}

// String renders the graph one module per block, sorted by name.
func (d *Dependencies) String() string {
	var sb strings.Builder
	for _, name := range d.names {
		s := d.specs[name]
		in := s.InLabel
		if in == "" {
			in = "-"
		}
		fmt.Fprintf(&sb, "%s: %s -> %s\n", name, in, s.OutLabel)
		fmt.Fprintf(&sb, "  upstream: %s\n", joinOrDash(d.upstream[name]))
		fmt.Fprintf(&sb, "  downstream: %s\n", joinOrDash(d.downstream[name]))
	}
	return sb.String()
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
