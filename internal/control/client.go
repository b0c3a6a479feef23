package control

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a typed PlantControl client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// UnitUpdate describes an UpdateUnit call. Nil pointers leave the current
// value untouched.
type UnitUpdate struct {
	ID             string
	HRTHours       *float64
	TemperatureC   *float64
	Overrides      map[string]float32
	ClearOverrides []string
}

// Invoke sends a raw Struct request to method.
func (c *Client) Invoke(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPlant(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodGetPlant, nil, opts...)
}

func (c *Client) Step(ctx context.Context, ticks int, dt time.Duration, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodStep, fields(map[string]*structpb.Value{
		"ticks":      structpb.NewNumberValue(float64(ticks)),
		"dt_seconds": structpb.NewNumberValue(dt.Seconds()),
	}), opts...)
}

// AppendUnit inserts a unit of kind immediately before the outlet.
func (c *Client) AppendUnit(ctx context.Context, kind string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodInsertUnit, fields(map[string]*structpb.Value{
		"kind": structpb.NewStringValue(kind),
	}), opts...)
}

func (c *Client) InsertUnit(ctx context.Context, kind string, index int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodInsertUnit, fields(map[string]*structpb.Value{
		"kind":  structpb.NewStringValue(kind),
		"index": structpb.NewNumberValue(float64(index)),
	}), opts...)
}

func (c *Client) RemoveUnit(ctx context.Context, index int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodRemoveUnit, fields(map[string]*structpb.Value{
		"index": structpb.NewNumberValue(float64(index)),
	}), opts...)
}

func (c *Client) RemoveUnitByID(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodRemoveUnit, fields(map[string]*structpb.Value{
		"id": structpb.NewStringValue(id),
	}), opts...)
}

func (c *Client) Reset(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodReset, nil, opts...)
}

func (c *Client) LoadPreset(ctx context.Context, name string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodLoadPreset, fields(map[string]*structpb.Value{
		"name": structpb.NewStringValue(name),
	}), opts...)
}

func (c *Client) SetInfluent(ctx context.Context, values map[string]float32, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodSetInfluent, fields(map[string]*structpb.Value{
		"parameters": structpb.NewStructValue(numbers(values)),
	}), opts...)
}

func (c *Client) UpdateUnit(ctx context.Context, u UnitUpdate, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req := map[string]*structpb.Value{
		"id": structpb.NewStringValue(u.ID),
	}
	cfg := map[string]*structpb.Value{}
	if u.HRTHours != nil {
		cfg["hrt_hours"] = structpb.NewNumberValue(*u.HRTHours)
	}
	if u.TemperatureC != nil {
		cfg["temperature_c"] = structpb.NewNumberValue(*u.TemperatureC)
	}
	if len(cfg) > 0 {
		req["config"] = structpb.NewStructValue(fields(cfg))
	}
	if len(u.Overrides) > 0 {
		req["overrides"] = structpb.NewStructValue(numbers(u.Overrides))
	}
	if len(u.ClearOverrides) > 0 {
		keys := make([]*structpb.Value, 0, len(u.ClearOverrides))
		for _, k := range u.ClearOverrides {
			keys = append(keys, structpb.NewStringValue(k))
		}
		req["clear_overrides"] = structpb.NewListValue(&structpb.ListValue{Values: keys})
	}
	return c.Invoke(ctx, MethodUpdateUnit, fields(req), opts...)
}

// GetHistory returns the plant-wide series of parameter, or one unit's
// outlet series when unitID is set.
func (c *Client) GetHistory(ctx context.Context, parameter, unitID string, opts ...grpc.CallOption) ([]float64, error) {
	req := map[string]*structpb.Value{
		"parameter": structpb.NewStringValue(parameter),
	}
	if unitID != "" {
		req["unit_id"] = structpb.NewStringValue(unitID)
	}
	resp, err := c.Invoke(ctx, MethodGetHistory, fields(req), opts...)
	if err != nil {
		return nil, err
	}
	values := resp.GetFields()["values"].GetListValue().GetValues()
	out := make([]float64, 0, len(values))
	for _, v := range values {
		out = append(out, v.GetNumberValue())
	}
	return out, nil
}

// Effluent extracts the effluent sample from a GetPlant-style response.
func Effluent(plant *structpb.Struct) map[string]float64 {
	return numberFields(plant.GetFields()["effluent"].GetStructValue())
}

// UnitIDs lists unit ids in chain order from a GetPlant-style response.
func UnitIDs(plant *structpb.Struct) []string {
	units := plant.GetFields()["units"].GetListValue().GetValues()
	out := make([]string, 0, len(units))
	for _, u := range units {
		out = append(out, u.GetStructValue().GetFields()["id"].GetStringValue())
	}
	return out
}

// UnitNames lists unit display names in chain order.
func UnitNames(plant *structpb.Struct) []string {
	units := plant.GetFields()["units"].GetListValue().GetValues()
	out := make([]string, 0, len(units))
	for _, u := range units {
		out = append(out, u.GetStructValue().GetFields()["name"].GetStringValue())
	}
	return out
}

func fields(m map[string]*structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: m}
}

func numbers(values map[string]float32) *structpb.Struct {
	out := make(map[string]*structpb.Value, len(values))
	for k, v := range values {
		out[k] = structpb.NewNumberValue(float64(v))
	}
	return fields(out)
}

func numberFields(s *structpb.Struct) map[string]float64 {
	out := make(map[string]float64, len(s.GetFields()))
	for k, v := range s.GetFields() {
		out[k] = v.GetNumberValue()
	}
	return out
}
