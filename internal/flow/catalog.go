package flow

import (
	"fmt"

	"github.com/r-salas/linguista/internal/models"
)

// Catalog is the immutable registry of task flows, built once at process
// start. It doubles as the step registry persisted queue entries are
// rehydrated against.
type Catalog struct {
	order []string
	flows map[string]*Flow
}

// NewCatalog validates the flows and indexes them by name.
func NewCatalog(flows ...*Flow) (*Catalog, error) {
	c := &Catalog{flows: make(map[string]*Flow, len(flows))}
	for _, f := range flows {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.flows[f.Name]; exists {
			return nil, fmt.Errorf("duplicate flow name %q", f.Name)
		}
		c.flows[f.Name] = f
		c.order = append(c.order, f.Name)
	}
	return c, nil
}

// Flow returns the named flow.
func (c *Catalog) Flow(name string) (*Flow, bool) {
	f, ok := c.flows[name]
	return f, ok
}

// Flows returns every flow in registration order.
func (c *Catalog) Flows() []*Flow {
	out := make([]*Flow, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.flows[name])
	}
	return out
}

// Step resolves a persisted (flow, step name) pair back to its callable.
func (c *Catalog) Step(flowName, stepName string) (StepFunc, error) {
	f, ok := c.flows[flowName]
	if !ok {
		return nil, fmt.Errorf("flow %q: %w", flowName, models.ErrUnknownFlow)
	}
	fn, ok := f.Steps[stepName]
	if !ok {
		return nil, fmt.Errorf("step %q of flow %q: %w", stepName, flowName, models.ErrUnknownStep)
	}
	return fn, nil
}
