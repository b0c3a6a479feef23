package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/signalsfoundry/wastewater-simulator/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPlantCollector(reg)
	if err != nil {
		t.Fatalf("NewPlantCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/wwtp.control.v1.PlantControl/InsertUnit"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("PlantControl", "InsertUnit", "OK")); got != 1 {
		t.Fatalf("control_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "control_request_duration_seconds", map[string]string{
		"service": "PlantControl",
		"method":  "InsertUnit",
	}); count != 1 {
		t.Fatalf("control_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPlantCollector(reg)
	if err != nil {
		t.Fatalf("NewPlantCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/wwtp.control.v1.PlantControl/RemoveUnit"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("PlantControl", "RemoveUnit", "InvalidArgument")); got != 1 {
		t.Fatalf("control_requests_total error label = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesPlantMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPlantCollector(reg)
	if err != nil {
		t.Fatalf("NewPlantCollector: %v", err)
	}
	effluent := model.DefaultInfluent()
	effluent.Set(model.BOD, 12.5)
	collector.ObserveStep(3*time.Millisecond, effluent)
	collector.SetUnitCount(10)
	collector.IncTopologyChange("insert")
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, line := range []string{
		"control_requests_total",
		"control_request_duration_seconds",
		"wwtp_steps_total 1",
		"wwtp_step_duration_seconds",
		"wwtp_units 10",
		`wwtp_effluent_value{parameter="bod"} 12.5`,
		`wwtp_topology_changes_total{op="insert"} 1`,
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected %q in /metrics output:\n%s", line, body)
		}
	}
}

func TestCollectorsReuseRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPlantCollector(reg)
	if err != nil {
		t.Fatalf("NewPlantCollector: %v", err)
	}
	second, err := NewPlantCollector(reg)
	if err != nil {
		t.Fatalf("second NewPlantCollector: %v", err)
	}
	first.Steps.Inc()
	if got := testutil.ToFloat64(second.Steps); got != 1 {
		t.Fatalf("shared wwtp_steps_total = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *PlantCollector
	c.ObserveStep(time.Millisecond, model.DefaultInfluent())
	c.SetUnitCount(3)
	c.IncTopologyChange("reset")

	var s *SchedulerCollector
	s.IncScheduleFire("night")
	s.ObserveReload(time.Now(), nil)
}

func TestSchedulerCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSchedulerCollector(reg)
	if err != nil {
		t.Fatalf("NewSchedulerCollector: %v", err)
	}
	c.IncScheduleFire("storm")
	c.IncScheduleFire("storm")
	c.SetScheduleEntries(2)
	c.ObserveReload(time.Unix(1700000000, 0), nil)
	c.ObserveReload(time.Now(), errors.New("bad json"))

	if got := testutil.ToFloat64(c.ScheduleFires.WithLabelValues("storm")); got != 2 {
		t.Fatalf("wwtp_schedule_fires_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.ConfigReloads.WithLabelValues("applied")); got != 1 {
		t.Fatalf("applied reloads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ConfigReloads.WithLabelValues("rejected")); got != 1 {
		t.Fatalf("rejected reloads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.LastReload); got != 1700000000 {
		t.Fatalf("last reload = %v, want 1700000000", got)
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct {
		in, service, method string
	}{
		{"/wwtp.control.v1.PlantControl/Step", "PlantControl", "Step"},
		{"PlantControl/GetPlant", "PlantControl", "GetPlant"},
		{"", "unknown", "unknown"},
		{"/bare", "unknown", "unknown"},
	}
	for _, tc := range cases {
		s, m := SplitMethod(tc.in)
		if s != tc.service || m != tc.method {
			t.Fatalf("SplitMethod(%q) = %q, %q; want %q, %q", tc.in, s, m, tc.service, tc.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
