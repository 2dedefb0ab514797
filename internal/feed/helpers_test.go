package feed

import (
	"testing"

	"github.com/signalsfoundry/marslink-sim/core"
	"github.com/signalsfoundry/marslink-sim/kb"
)

func newTestState(t *testing.T) (*kb.Registry, *core.SimulationState) {
	t.Helper()
	reg := kb.NewRegistry()
	st, err := core.NewSimulationState(core.DefaultScenario(), reg, core.DefaultBuildOptions(), core.NewRand(5))
	if err != nil {
		t.Fatalf("NewSimulationState: %v", err)
	}
	return reg, st
}
