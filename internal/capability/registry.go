// Package capability executes agent instructions against a language model.
// Capabilities are compiled in and looked up by name; stored agent
// configuration only ever refers to them.
package capability

import (
	"fmt"
	"sort"
	"strings"

	"brigade/internal/models"
)

// Capability contributes system guidance to agents that declare it.
type Capability interface {
	Name() string
	Guidance() string
}

type guide struct {
	name     string
	guidance string
}

func (g guide) Name() string     { return g.name }
func (g guide) Guidance() string { return g.guidance }

// Static returns a capability with fixed guidance.
func Static(name, guidance string) Capability {
	return guide{name: name, guidance: guidance}
}

// Registry maps capability names to implementations.
type Registry struct {
	caps map[string]Capability
}

func NewRegistry(caps ...Capability) *Registry {
	r := &Registry{caps: map[string]Capability{}}
	for _, c := range caps {
		r.Register(c)
	}
	return r
}

// Register adds or replaces c. Names are case-insensitive.
func (r *Registry) Register(c Capability) {
	r.caps[strings.ToLower(c.Name())] = c
}

func (r *Registry) Lookup(name string) (Capability, bool) {
	c, ok := r.caps[strings.ToLower(name)]
	return c, ok
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for n := range r.caps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate fails if any agent declares a capability that is not registered.
func (r *Registry) Validate(agents []models.Agent) error {
	var unknown []string
	for _, a := range agents {
		for _, name := range a.Capabilities {
			if _, ok := r.Lookup(name); !ok {
				unknown = append(unknown, fmt.Sprintf("%s:%s", a.ID, name))
			}
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown capabilities (agent:capability): %s", strings.Join(unknown, ", "))
	}
	return nil
}

// Guidance concatenates the guidance of every named capability.
func (r *Registry) Guidance(names []string) string {
	var b strings.Builder
	for _, n := range names {
		c, ok := r.Lookup(n)
		if !ok || c.Guidance() == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(c.Guidance())
		b.WriteString("\n")
	}
	return b.String()
}

// DefaultRegistry holds the capabilities the default roster uses.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Static("routing", "Decide which departments a request needs and what each should do."),
		Static("synthesis", "Merge contributions from specialists into one cohesive deliverable."),
		Static("writing", "Write clear, vivid prose suited to the requested audience."),
		Static("dialogue", "Write natural dialogue with distinct voices."),
		Static("character-development", "Give characters motivation, history and change."),
		Static("plot", "Structure events with rising tension and a satisfying resolution."),
		Static("worldbuilding", "Keep setting details consistent and concrete."),
		Static("editing", "Tighten wording and fix errors without changing intent."),
		Static("code", "Produce correct, idiomatic code with brief explanations."),
		Static("testing", "Cover edge cases and failure paths with focused tests."),
		Static("research", "Cite sources, separate facts from inference and flag uncertainty."),
		Static("design", "Describe layouts and interactions precisely."),
		Static("marketing", "Address the target audience with a clear call to action."),
	)
}
