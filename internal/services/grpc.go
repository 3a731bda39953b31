package services

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/incident-metrics/internal/api"
)

var _ api.MetricsEngineServer = (*MetricsService)(nil)

// ComputeMetrics implements the gRPC MetricsEngine/ComputeMetrics method.
func (s *MetricsService) ComputeMetrics(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	req, err := api.FromStructComputeRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.logger.Debug("ComputeMetrics called", slog.String("filter", req.Filter.Key()))

	m, err := s.Compute(ctx, req)
	if err != nil {
		if status.Code(api.GRPCError(err)) == codes.Internal {
			s.logger.Error("compute metrics failed", slog.Any("error", err))
		}
		return nil, api.GRPCError(err)
	}
	out, err := api.ToStruct(m)
	if err != nil {
		s.logger.Error("encode metrics failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode metrics")
	}
	return out, nil
}

// HealthCheck returns the serving state and snapshot details.
func (s *MetricsService) HealthCheck(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	st := s.Status()
	out, err := api.ToStruct(st)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode status")
	}
	state := "NOT_SERVING"
	if st.Ready {
		state = "SERVING"
	}
	out.Fields["status"] = structpb.NewStringValue(state)
	return out, nil
}
