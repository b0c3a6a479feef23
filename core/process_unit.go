package core

import (
	"github.com/google/uuid"
	"github.com/signalsfoundry/wastewater-simulator/model"
)

// ProcessUnit is one stage of the treatment train. Its inlet is written only
// by Pipeline propagation and its outlet only by its own transfer function.
type ProcessUnit struct {
	ID          uuid.UUID
	Name        string
	Description string
	Kind        model.UnitKind
	Config      model.UnitConfig

	inlet  model.WaterSample
	outlet model.WaterSample
}

func newProcessUnit(id uuid.UUID, kind model.UnitKind, cfg model.UnitConfig) *ProcessUnit {
	return &ProcessUnit{
		ID:          id,
		Name:        kind.String(),
		Description: kind.Description(),
		Kind:        kind,
		Config:      cfg,
		inlet:       model.DefaultInfluent(),
		outlet:      model.DefaultInfluent(),
	}
}

// Inlet returns a copy of the most recently propagated inlet sample.
func (u *ProcessUnit) Inlet() model.WaterSample { return u.inlet }

// Outlet returns a copy of the most recently computed outlet sample.
func (u *ProcessUnit) Outlet() model.WaterSample { return u.outlet }

func (u *ProcessUnit) simulate() {
	u.outlet = Transfer(u.Kind, u.inlet, u.Config)
}

// UnitView is a detached, read-only copy of a unit's state at a given
// position in the pipeline. Holding a view never pins the unit: once the
// unit is removed its ID simply stops resolving.
type UnitView struct {
	ID          uuid.UUID
	Index       int
	Name        string
	Description string
	Kind        model.UnitKind
	Config      model.UnitConfig
	Inlet       model.WaterSample
	Outlet      model.WaterSample
}

func (u *ProcessUnit) view(index int) UnitView {
	return UnitView{
		ID:          u.ID,
		Index:       index,
		Name:        u.Name,
		Description: u.Description,
		Kind:        u.Kind,
		Config:      u.Config.Clone(),
		Inlet:       u.inlet,
		Outlet:      u.outlet,
	}
}
