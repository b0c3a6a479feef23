package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "wwtp.control.v1.PlantControl"

// Method names of the PlantControl service.
const (
	MethodGetPlant    = "GetPlant"
	MethodStep        = "Step"
	MethodInsertUnit  = "InsertUnit"
	MethodRemoveUnit  = "RemoveUnit"
	MethodReset       = "Reset"
	MethodLoadPreset  = "LoadPreset"
	MethodSetInfluent = "SetInfluent"
	MethodUpdateUnit  = "UpdateUnit"
	MethodGetHistory  = "GetHistory"
)

// PlantControlServer is the server API for the PlantControl service. Every
// method exchanges google.protobuf.Struct messages.
type PlantControlServer interface {
	GetPlant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Step(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InsertUnit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveUnit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoadPreset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetInfluent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateUnit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(PlantControlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// PlantControlServiceDesc describes the service for grpc.Server.
var PlantControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlantControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodGetPlant, PlantControlServer.GetPlant),
		unaryMethod(MethodStep, PlantControlServer.Step),
		unaryMethod(MethodInsertUnit, PlantControlServer.InsertUnit),
		unaryMethod(MethodRemoveUnit, PlantControlServer.RemoveUnit),
		unaryMethod(MethodReset, PlantControlServer.Reset),
		unaryMethod(MethodLoadPreset, PlantControlServer.LoadPreset),
		unaryMethod(MethodSetInfluent, PlantControlServer.SetInfluent),
		unaryMethod(MethodUpdateUnit, PlantControlServer.UpdateUnit),
		unaryMethod(MethodGetHistory, PlantControlServer.GetHistory),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wwtp/control/v1/plant_control.proto",
}

// RegisterPlantControlServer registers srv on s.
func RegisterPlantControlServer(s grpc.ServiceRegistrar, srv PlantControlServer) {
	s.RegisterService(&PlantControlServiceDesc, srv)
}

// FullMethod returns the "/service/method" path of a PlantControl method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PlantControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PlantControlServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
