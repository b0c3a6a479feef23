package control

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/wastewater-simulator/core"
	"github.com/signalsfoundry/wastewater-simulator/internal/logging"
	"github.com/signalsfoundry/wastewater-simulator/internal/sim/state"
	"github.com/signalsfoundry/wastewater-simulator/model"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultMaxStepTicks bounds a single Step request.
const DefaultMaxStepTicks = 100000

// Service implements PlantControlServer on top of a PlantState.
type Service struct {
	state        *state.PlantState
	log          logging.Logger
	maxStepTicks int
}

var _ PlantControlServer = (*Service)(nil)

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithMaxStepTicks caps the ticks accepted by one Step call.
func WithMaxStepTicks(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxStepTicks = n
		}
	}
}

// NewService returns a control service bound to st.
func NewService(st *state.PlantState, log logging.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = logging.Noop()
	}
	s := &Service{
		state:        st,
		log:          log,
		maxStepTicks: DefaultMaxStepTicks,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// GetPlant returns the full plant snapshot.
func (s *Service) GetPlant(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return snapshotStruct(s.state.Snapshot()), nil
}

// Step advances the plant. Fields: ticks (default 1), dt_seconds
// (default 1).
func (s *Service) Step(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ticks, ok, err := optInt(req, "ticks")
	if err != nil {
		return nil, ToStatusError(err)
	}
	if !ok {
		ticks = 1
	}
	if ticks < 1 || ticks > s.maxStepTicks {
		return nil, ToStatusError(fmt.Errorf("%w: ticks must be in 1..%d, got %d", ErrInvalidRequest, s.maxStepTicks, ticks))
	}
	dtSeconds, ok, err := optNumber(req, "dt_seconds")
	if err != nil {
		return nil, ToStatusError(err)
	}
	if !ok {
		dtSeconds = 1
	}
	if dtSeconds < 0 {
		return nil, ToStatusError(fmt.Errorf("%w: dt_seconds must be non-negative", ErrInvalidRequest))
	}
	dt := time.Duration(dtSeconds * float64(time.Second))

	ctx, span := StartChildSpan(ctx, "PlantControl.Step.Run", "", attribute.Int("ticks", ticks))
	ran, err := s.state.Run(ctx, ticks, dt)
	span.End()
	if err != nil {
		return nil, ToStatusError(err)
	}

	requestLogger(ctx, s.log).Debug(ctx, "plant stepped",
		logging.Int("ticks", ran),
		logging.Duration("dt", dt),
	)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ticks_run": structpb.NewNumberValue(float64(ran)),
		"plant":     structpb.NewStructValue(snapshotStruct(s.state.Snapshot())),
	}}, nil
}

// InsertUnit adds a unit. Fields: kind (required), index (default: just
// before the outlet), config (partial UnitConfig object).
func (s *Service) InsertUnit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kindName, err := requireString(req, "kind")
	if err != nil {
		return nil, ToStatusError(err)
	}
	kind, err := model.ParseUnitKind(kindName)
	if err != nil {
		return nil, ToStatusError(err)
	}
	index, hasIndex, err := optInt(req, "index")
	if err != nil {
		return nil, ToStatusError(err)
	}
	cfg := model.DefaultConfigFor(kind)
	if raw, ok, err := optStruct(req, "config"); err != nil {
		return nil, ToStatusError(err)
	} else if ok {
		if cfg, err = decodeUnitConfig(raw, cfg); err != nil {
			return nil, ToStatusError(err)
		}
	}

	var view core.UnitView
	if hasIndex {
		view, err = s.state.InsertUnit(ctx, kind, cfg, index)
	} else {
		view, err = s.state.AppendUnit(ctx, kind, cfg)
	}
	if err != nil {
		return nil, ToStatusError(err)
	}
	return unitStruct(view), nil
}

// RemoveUnit deletes a unit by index or id; exactly one must be given.
func (s *Service) RemoveUnit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	index, hasIndex, err := optInt(req, "index")
	if err != nil {
		return nil, ToStatusError(err)
	}
	rawID, hasID, err := optString(req, "id")
	if err != nil {
		return nil, ToStatusError(err)
	}
	if hasIndex == hasID {
		return nil, ToStatusError(fmt.Errorf("%w: exactly one of index or id is required", ErrInvalidRequest))
	}

	var view core.UnitView
	if hasIndex {
		view, err = s.state.RemoveUnit(ctx, index)
	} else {
		var id uuid.UUID
		if id, err = parseUnitID(rawID); err == nil {
			view, err = s.state.RemoveUnitByID(ctx, id)
		}
	}
	if err != nil {
		return nil, ToStatusError(err)
	}
	return unitStruct(view), nil
}

// Reset clears every treatment unit and returns the resulting plant.
func (s *Service) Reset(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s.state.Reset(ctx)
	return snapshotStruct(s.state.Snapshot()), nil
}

// LoadPreset replaces the train with a named preset. Field: name.
func (s *Service) LoadPreset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(req, "name")
	if err != nil {
		return nil, ToStatusError(err)
	}
	if err := s.state.LoadPreset(ctx, name); err != nil {
		return nil, ToStatusError(err)
	}
	return snapshotStruct(s.state.Snapshot()), nil
}

// SetInfluent overlays influent values. Field: parameters (key to number).
func (s *Service) SetInfluent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, ok, err := optStruct(req, "parameters")
	if err != nil {
		return nil, ToStatusError(err)
	}
	if !ok || len(raw.GetFields()) == 0 {
		return nil, ToStatusError(fmt.Errorf("%w: parameters is required", ErrInvalidRequest))
	}
	values, err := numberMap(raw, "parameters")
	if err != nil {
		return nil, ToStatusError(err)
	}

	influent, err := s.state.OverlayInfluent(ctx, values, "rpc")
	if err != nil {
		return nil, ToStatusError(err)
	}
	requestLogger(ctx, s.log).Info(ctx, "influent updated",
		logging.String("parameters", strings.Join(sortedKeys(values), ",")),
	)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"influent": structpb.NewStructValue(sampleStruct(influent)),
	}}, nil
}

// UpdateUnit changes one unit. Fields: id (required), config (partial
// UnitConfig object applied over the current one), overrides (parameter key
// to efficiency), clear_overrides (list of parameter keys). Everything is
// validated before anything is applied.
func (s *Service) UpdateUnit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rawID, err := requireString(req, "id")
	if err != nil {
		return nil, ToStatusError(err)
	}
	id, err := parseUnitID(rawID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	rawCfg, hasCfg, err := optStruct(req, "config")
	if err != nil {
		return nil, ToStatusError(err)
	}

	var overrides map[model.Parameter]float32
	if rawOverrides, ok, err := optStruct(req, "overrides"); err != nil {
		return nil, ToStatusError(err)
	} else if ok {
		values, err := numberMap(rawOverrides, "overrides")
		if err != nil {
			return nil, ToStatusError(err)
		}
		overrides = make(map[model.Parameter]float32, len(values))
		for key, eff := range values {
			param, err := model.ParseParameter(key)
			if err != nil {
				return nil, ToStatusError(err)
			}
			overrides[param] = eff
		}
	}

	clearKeys, err := optStringList(req, "clear_overrides")
	if err != nil {
		return nil, ToStatusError(err)
	}
	cleared := make([]model.Parameter, 0, len(clearKeys))
	for _, key := range clearKeys {
		param, err := model.ParseParameter(key)
		if err != nil {
			return nil, ToStatusError(err)
		}
		cleared = append(cleared, param)
	}

	view, err := s.state.ModifyUnitConfig(ctx, id, func(cfg *model.UnitConfig) error {
		if hasCfg {
			next, err := decodeUnitConfig(rawCfg, *cfg)
			if err != nil {
				return err
			}
			*cfg = next
		}
		for _, param := range model.Parameters() {
			if eff, ok := overrides[param]; ok {
				if err := cfg.SetOverride(param, eff); err != nil {
					return err
				}
			}
		}
		for _, param := range cleared {
			cfg.ClearOverride(param)
		}
		return nil
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return unitStruct(view), nil
}

// GetHistory returns a recorded series. Fields: parameter (required),
// unit_id (optional; requires per-unit history).
func (s *Service) GetHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := requireString(req, "parameter")
	if err != nil {
		return nil, ToStatusError(err)
	}
	param, err := model.ParseParameter(key)
	if err != nil {
		return nil, ToStatusError(err)
	}
	rawID, hasID, err := optString(req, "unit_id")
	if err != nil {
		return nil, ToStatusError(err)
	}

	var values []float32
	if hasID {
		id, err := parseUnitID(rawID)
		if err != nil {
			return nil, ToStatusError(err)
		}
		if values, err = s.state.UnitSeries(id, param); err != nil {
			return nil, ToStatusError(err)
		}
	} else {
		values = s.state.Series(param)
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"parameter": structpb.NewStringValue(param.String()),
		"unit":      structpb.NewStringValue(param.Unit()),
		"capacity":  structpb.NewNumberValue(float64(s.state.HistoryCapacity())),
		"values":    seriesList(values),
	}}, nil
}
