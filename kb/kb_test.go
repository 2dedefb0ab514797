package kb

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/signalsfoundry/marslink-sim/model"
)

func TestAddAndGetEntity(t *testing.T) {
	reg := NewRegistry()
	e := &model.Entity{Name: "earth-sat-0", Role: model.RoleFriendlySatellite, Body: model.BodyEarth}
	id, err := reg.Add(e, model.Vec3{X: 3.5})
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if id != 1 || e.ID != id {
		t.Fatalf("Add assigned id=%d entity.ID=%d, want 1", id, e.ID)
	}
	got := reg.Get(id)
	if got == nil || got.Name != "earth-sat-0" {
		t.Fatalf("Get returned %#v", got)
	}
	if pos, ok := reg.Position(id); !ok || pos.X != 3.5 {
		t.Fatalf("Position = %+v, %v", pos, ok)
	}
	if reg.Lookup("earth-sat-0") != e {
		t.Fatalf("Lookup did not return the registered entity")
	}
}

func TestAddDuplicateName(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Add(&model.Entity{Name: "gs"}, model.Vec3{}); err != nil {
		t.Fatalf("first Add error: %v", err)
	}
	_, err := reg.Add(&model.Entity{Name: "gs"}, model.Vec3{})
	if !errors.Is(err, ErrEntityExists) {
		t.Fatalf("duplicate Add error = %v, want ErrEntityExists", err)
	}
}

func TestAddRejectsBadInput(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Add(nil, model.Vec3{}); !errors.Is(err, ErrEntityBadInput) {
		t.Fatalf("nil entity error = %v", err)
	}
	if _, err := reg.Add(&model.Entity{Name: "nan"}, model.Vec3{X: math.NaN()}); !errors.Is(err, ErrEntityBadInput) {
		t.Fatalf("NaN position error = %v", err)
	}
}

func TestGroupIndexes(t *testing.T) {
	reg := NewRegistry()
	for i := range 3 {
		if _, err := reg.Add(&model.Entity{
			Name: fmt.Sprintf("mars-sat-%d", i),
			Role: model.RoleFriendlySatellite,
			Body: model.BodyMars,
		}, model.Vec3{}); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}
	if _, err := reg.Add(&model.Entity{Name: "earth-sat-0", Role: model.RoleFriendlySatellite, Body: model.BodyEarth}, model.Vec3{}); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	group := reg.Group(model.BodyMars, model.RoleFriendlySatellite)
	if len(group) != 3 {
		t.Fatalf("Group len = %d, want 3", len(group))
	}
	for i, e := range group {
		if e.Index != i {
			t.Fatalf("group[%d].Index = %d", i, e.Index)
		}
	}
	if earth := reg.Group(model.BodyEarth, model.RoleFriendlySatellite); len(earth) != 1 || earth[0].Index != 0 {
		t.Fatalf("earth group = %#v", earth)
	}
	if got := reg.CountByRole()[model.RoleFriendlySatellite.String()]; got != 4 {
		t.Fatalf("CountByRole = %d, want 4", got)
	}
}

func TestSetPosition(t *testing.T) {
	reg := NewRegistry()
	id, _ := reg.Add(&model.Entity{Name: "a"}, model.Vec3{})

	if err := reg.SetPosition(id, model.Vec3{Y: 2}); err != nil {
		t.Fatalf("SetPosition error: %v", err)
	}
	if err := reg.SetPosition(99, model.Vec3{}); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("unknown id error = %v", err)
	}
	if err := reg.SetPosition(id, model.Vec3{Z: math.Inf(1)}); !errors.Is(err, ErrEntityBadInput) {
		t.Fatalf("Inf position error = %v", err)
	}
	positions := reg.Positions([]*model.Entity{reg.Get(id)})
	if positions[0] != (model.Vec3{Y: 2}) {
		t.Fatalf("Positions = %+v", positions)
	}
}

func TestConcurrentReadersDuringUpdates(t *testing.T) {
	reg := NewRegistry()
	id, _ := reg.Add(&model.Entity{Name: "a"}, model.Vec3{})

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				_, _ = reg.Position(id)
				_ = reg.Entities()
			}
		}()
	}
	for i := range 200 {
		if err := reg.SetPosition(id, model.Vec3{X: float64(i)}); err != nil {
			t.Errorf("SetPosition error: %v", err)
		}
	}
	wg.Wait()
}
