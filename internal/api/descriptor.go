package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// MetricsEngineServiceName is the fully qualified gRPC service name.
const MetricsEngineServiceName = "incidentmetrics.v1.MetricsEngine"

const (
	computeMetricsMethod = "/" + MetricsEngineServiceName + "/ComputeMetrics"
	healthCheckMethod    = "/" + MetricsEngineServiceName + "/HealthCheck"
)

// MetricsEngineServer is the server API for the MetricsEngine service. Messages
// are google.protobuf.Struct documents carrying the JSON request and response.
type MetricsEngineServer interface {
	ComputeMetrics(context.Context, *structpb.Struct) (*structpb.Struct, error)
	HealthCheck(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterMetricsEngineServer registers srv on s.
func RegisterMetricsEngineServer(s grpc.ServiceRegistrar, srv MetricsEngineServer) {
	s.RegisterService(&MetricsEngineServiceDesc, srv)
}

// MetricsEngineServiceDesc describes the MetricsEngine service for grpc.Server.
var MetricsEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: MetricsEngineServiceName,
	HandlerType: (*MetricsEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ComputeMetrics", Handler: computeMetricsHandler},
		{MethodName: "HealthCheck", Handler: healthCheckHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "incidentmetrics/v1/metrics_engine.proto",
}

func computeMetricsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetricsEngineServer).ComputeMetrics(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: computeMetricsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MetricsEngineServer).ComputeMetrics(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func healthCheckHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetricsEngineServer).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: healthCheckMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MetricsEngineServer).HealthCheck(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// MetricsEngineClient calls the MetricsEngine service.
type MetricsEngineClient struct {
	cc grpc.ClientConnInterface
}

// NewMetricsEngineClient wraps an established connection.
func NewMetricsEngineClient(cc grpc.ClientConnInterface) *MetricsEngineClient {
	return &MetricsEngineClient{cc: cc}
}

// ComputeMetrics invokes MetricsEngine/ComputeMetrics.
func (c *MetricsEngineClient) ComputeMetrics(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, computeMetricsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// HealthCheck invokes MetricsEngine/HealthCheck.
func (c *MetricsEngineClient) HealthCheck(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, healthCheckMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
