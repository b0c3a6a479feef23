package control

import (
	"context"
	"errors"

	"github.com/signalsfoundry/wastewater-simulator/core"
	"github.com/signalsfoundry/wastewater-simulator/internal/config"
	"github.com/signalsfoundry/wastewater-simulator/internal/schedule"
	"github.com/signalsfoundry/wastewater-simulator/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidRequest marks a request message with missing or mistyped fields.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps simulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, core.ErrUnknownUnit),
		errors.Is(err, core.ErrUnknownPreset),
		errors.Is(err, schedule.ErrUnknownSchedule):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidIndex),
		errors.Is(err, core.ErrInvalidValue),
		errors.Is(err, model.ErrInvalidParameter),
		errors.Is(err, model.ErrInvalidUnitKind),
		errors.Is(err, model.ErrInvalidEfficiency),
		errors.Is(err, model.ErrInvalidConfig),
		errors.Is(err, config.ErrInvalidConfig):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
