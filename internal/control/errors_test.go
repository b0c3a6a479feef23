package control

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/signalsfoundry/wastewater-simulator/core"
	"github.com/signalsfoundry/wastewater-simulator/internal/config"
	"github.com/signalsfoundry/wastewater-simulator/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		code    codes.Code
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "status passthrough", err: status.Error(codes.PermissionDenied, "denied"), code: codes.PermissionDenied},
		{name: "bad request", err: fmt.Errorf("%w: ticks", ErrInvalidRequest), code: codes.InvalidArgument},
		{name: "index", err: fmt.Errorf("%w: 42", core.ErrInvalidIndex), code: codes.InvalidArgument},
		{name: "parameter", err: model.ErrInvalidParameter, code: codes.InvalidArgument},
		{name: "kind", err: model.ErrInvalidUnitKind, code: codes.InvalidArgument},
		{name: "efficiency", err: model.ErrInvalidEfficiency, code: codes.InvalidArgument},
		{name: "value", err: core.ErrInvalidValue, code: codes.InvalidArgument},
		{name: "unit config", err: model.ErrInvalidConfig, code: codes.InvalidArgument},
		{name: "plant config", err: config.ErrInvalidConfig, code: codes.InvalidArgument},
		{name: "unknown unit", err: core.ErrUnknownUnit, code: codes.NotFound},
		{name: "unknown preset", err: fmt.Errorf("%w: moon", core.ErrUnknownPreset), code: codes.NotFound},
		{name: "canceled", err: context.Canceled, code: codes.Canceled},
		{name: "fallback", err: errors.New("boom"), code: codes.Internal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ToStatusError(tc.err)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("ToStatusError(nil) = %v, want nil", got)
				}
				return
			}
			if code := status.Code(got); code != tc.code {
				t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, code, tc.code)
			}
		})
	}
}
