package services

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/incident-metrics/internal/api"
	"github.com/miradorstack/incident-metrics/internal/config"
	"github.com/miradorstack/incident-metrics/internal/models"
)

func dialService(t *testing.T, svc *MetricsService) *api.MetricsEngineClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server, err := api.NewServer(config.ServerConfig{}, svc, lis)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return api.NewMetricsEngineClient(conn)
}

func TestComputeMetricsOverGRPC(t *testing.T) {
	svc := newTestService(t, &sourceStub{}, Options{})
	svc.Load(sampleRecords())
	client := dialService(t, svc)

	in, err := structpb.NewStruct(map[string]any{
		"filter": map[string]any{"year": 2024, "startMonth": 3, "endMonth": 3},
		"asOf":   "2024-03-10T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	out, err := client.ComputeMetrics(context.Background(), in)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	var m models.Metrics
	if err := api.FromStruct(out, &m); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if m.Stats.Total != 3 || m.Filter.Year != "2024" || m.ComputationID == "" {
		t.Fatalf("unexpected response %+v", m.Stats)
	}
}

func TestComputeMetricsStatusCodes(t *testing.T) {
	svc := newTestService(t, &sourceStub{}, Options{})
	client := dialService(t, svc)
	ctx := context.Background()

	_, err := client.ComputeMetrics(ctx, &structpb.Struct{})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition before a snapshot, got %v", err)
	}

	svc.Load(sampleRecords())
	bad, _ := structpb.NewStruct(map[string]any{"filter": map[string]any{"year": "2024", "startMonth": 13, "endMonth": 1}})
	if _, err := client.ComputeMetrics(ctx, bad); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	health, err := client.HealthCheck(ctx, &structpb.Struct{})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Fields["status"].GetStringValue() != "SERVING" || health.Fields["records"].GetNumberValue() != 3 {
		t.Fatalf("unexpected health %v", health)
	}
}
