package jobs

import "math/rand"

// Decider is the auto quality gate applied after rendering. Partial
// matches fail half the time; renders carry a small residual failure
// rate of their own.
type Decider interface {
	FailPartial() bool
	FailRender() bool
}

// RandomGate is the production gate.
type RandomGate struct{}

var _ Decider = RandomGate{}

func (RandomGate) FailPartial() bool { return rand.Float64() < 0.5 }
func (RandomGate) FailRender() bool  { return rand.Float64() < 0.05 }

// StaticGate pins both decisions. Tests use it to steer the pipeline
// down a specific branch.
type StaticGate struct {
	Partial bool
	Render  bool
}

var _ Decider = StaticGate{}

func (g StaticGate) FailPartial() bool { return g.Partial }
func (g StaticGate) FailRender() bool  { return g.Render }
