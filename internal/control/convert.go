package control

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/signalsfoundry/wastewater-simulator/core"
	"github.com/signalsfoundry/wastewater-simulator/internal/sim/state"
	"github.com/signalsfoundry/wastewater-simulator/model"
	"google.golang.org/protobuf/types/known/structpb"
)

//
// ---------- Request decoding ----------
//

func field(req *structpb.Struct, key string) (*structpb.Value, bool) {
	v, ok := req.GetFields()[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

func optString(req *structpb.Struct, key string) (string, bool, error) {
	v, ok := field(req, key)
	if !ok {
		return "", false, nil
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", false, fmt.Errorf("%w: %s must be a string", ErrInvalidRequest, key)
	}
	return s.StringValue, true, nil
}

func requireString(req *structpb.Struct, key string) (string, error) {
	s, ok, err := optString(req, key)
	if err != nil {
		return "", err
	}
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidRequest, key)
	}
	return s, nil
}

func optNumber(req *structpb.Struct, key string) (float64, bool, error) {
	v, ok := field(req, key)
	if !ok {
		return 0, false, nil
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber || math.IsNaN(n.NumberValue) || math.IsInf(n.NumberValue, 0) {
		return 0, false, fmt.Errorf("%w: %s must be a finite number", ErrInvalidRequest, key)
	}
	return n.NumberValue, true, nil
}

func optInt(req *structpb.Struct, key string) (int, bool, error) {
	n, ok, err := optNumber(req, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
		return 0, false, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidRequest, key, n)
	}
	return int(n), true, nil
}

func optStruct(req *structpb.Struct, key string) (*structpb.Struct, bool, error) {
	v, ok := field(req, key)
	if !ok {
		return nil, false, nil
	}
	s, isStruct := v.GetKind().(*structpb.Value_StructValue)
	if !isStruct {
		return nil, false, fmt.Errorf("%w: %s must be an object", ErrInvalidRequest, key)
	}
	return s.StructValue, true, nil
}

func optStringList(req *structpb.Struct, key string) ([]string, error) {
	v, ok := field(req, key)
	if !ok {
		return nil, nil
	}
	list, isList := v.GetKind().(*structpb.Value_ListValue)
	if !isList {
		return nil, fmt.Errorf("%w: %s must be a list of strings", ErrInvalidRequest, key)
	}
	out := make([]string, 0, len(list.ListValue.GetValues()))
	for _, item := range list.ListValue.GetValues() {
		s, isString := item.GetKind().(*structpb.Value_StringValue)
		if !isString {
			return nil, fmt.Errorf("%w: %s must be a list of strings", ErrInvalidRequest, key)
		}
		out = append(out, s.StringValue)
	}
	return out, nil
}

// numberMap decodes an object of parameter key to number.
func numberMap(s *structpb.Struct, key string) (map[string]float32, error) {
	out := make(map[string]float32, len(s.GetFields()))
	for k := range s.GetFields() {
		n, _, err := optNumber(s, k)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s must be a finite number", ErrInvalidRequest, key, k)
		}
		v := float32(n)
		if !model.IsFinite(v) {
			return nil, fmt.Errorf("%w: %s.%s=%v overflows float32", ErrInvalidRequest, key, k, n)
		}
		out[k] = v
	}
	return out, nil
}

func parseUnitID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: id %q: %v", ErrInvalidRequest, s, err)
	}
	return id, nil
}

// decodeUnitConfig overlays the JSON form of s onto base. Unknown keys are
// rejected.
func decodeUnitConfig(s *structpb.Struct, base model.UnitConfig) (model.UnitConfig, error) {
	raw, err := s.MarshalJSON()
	if err != nil {
		return base, fmt.Errorf("%w: config: %v", ErrInvalidRequest, err)
	}
	cfg := base.Clone()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return base, fmt.Errorf("%w: config: %v", ErrInvalidRequest, err)
	}
	return cfg, nil
}

//
// ---------- Response encoding ----------
//

func sampleStruct(w model.WaterSample) *structpb.Struct {
	fields := make(map[string]*structpb.Value, model.ParameterCount)
	for _, p := range model.Parameters() {
		fields[p.String()] = structpb.NewNumberValue(float64(w.Get(p)))
	}
	return &structpb.Struct{Fields: fields}
}

func configStruct(cfg model.UnitConfig) *structpb.Struct {
	overrides := make(map[string]*structpb.Value, len(cfg.RemovalOverrides))
	for p, eff := range cfg.RemovalOverrides {
		overrides[p.String()] = structpb.NewNumberValue(float64(eff))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"volume_m3":         structpb.NewNumberValue(float64(cfg.VolumeM3)),
		"flow_rate_m3_day":  structpb.NewNumberValue(float64(cfg.FlowRateM3Day)),
		"hrt_hours":         structpb.NewNumberValue(float64(cfg.HRTHours)),
		"srt_days":          structpb.NewNumberValue(float64(cfg.SRTDays)),
		"temperature_c":     structpb.NewNumberValue(float64(cfg.TemperatureC)),
		"removal_overrides": structpb.NewStructValue(&structpb.Struct{Fields: overrides}),
	}}
}

func unitStruct(u core.UnitView) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":          structpb.NewStringValue(u.ID.String()),
		"index":       structpb.NewNumberValue(float64(u.Index)),
		"name":        structpb.NewStringValue(u.Name),
		"kind":        structpb.NewStringValue(u.Kind.Key()),
		"description": structpb.NewStringValue(u.Description),
		"config":      structpb.NewStructValue(configStruct(u.Config)),
		"inlet":       structpb.NewStructValue(sampleStruct(u.Inlet)),
		"outlet":      structpb.NewStructValue(sampleStruct(u.Outlet)),
	}}
}

func snapshotStruct(s state.PlantSnapshot) *structpb.Struct {
	units := make([]*structpb.Value, 0, len(s.Units))
	for _, u := range s.Units {
		units = append(units, structpb.NewStructValue(unitStruct(u)))
	}
	conns := make([]*structpb.Value, 0, len(s.Connections))
	for _, c := range s.Connections {
		conns = append(conns, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"from": structpb.NewStringValue(c.From.String()),
			"to":   structpb.NewStringValue(c.To.String()),
		}}))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ticks":           structpb.NewNumberValue(float64(s.Ticks)),
		"elapsed_seconds": structpb.NewNumberValue(s.Elapsed.Seconds()),
		"revision":        structpb.NewNumberValue(float64(s.Revision)),
		"units":           structpb.NewListValue(&structpb.ListValue{Values: units}),
		"connections":     structpb.NewListValue(&structpb.ListValue{Values: conns}),
		"influent":        structpb.NewStructValue(sampleStruct(s.Influent)),
		"effluent":        structpb.NewStructValue(sampleStruct(s.Effluent)),
	}}
}

func seriesList(values []float32) *structpb.Value {
	out := make([]*structpb.Value, 0, len(values))
	for _, v := range values {
		out = append(out, structpb.NewNumberValue(float64(v)))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: out})
}

func sortedKeys(m map[string]float32) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
