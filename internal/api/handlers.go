package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/incident-metrics/internal/models"
)

// computeRequestWire is the JSON shape of a compute request. Year may be sent
// as a string ("2024", "ALL") or a number.
type computeRequestWire struct {
	Filter struct {
		Year       any `json:"year"`
		StartMonth any `json:"startMonth"`
		EndMonth   any `json:"endMonth"`
	} `json:"filter"`
	AsOf          string `json:"asOf"`
	RequireLatest bool   `json:"requireLatest"`
}

// DecodeComputeRequest parses a JSON compute request. An empty body selects
// all records as of now.
func DecodeComputeRequest(data []byte) (models.ComputeRequest, error) {
	var req models.ComputeRequest
	if len(bytes.TrimSpace(data)) == 0 {
		return req, nil
	}
	var wire computeRequestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}

	year, err := yearString(wire.Filter.Year)
	if err != nil {
		return req, err
	}
	start, err := monthInt("startMonth", wire.Filter.StartMonth)
	if err != nil {
		return req, err
	}
	end, err := monthInt("endMonth", wire.Filter.EndMonth)
	if err != nil {
		return req, err
	}
	req.Filter = models.FilterParams{Year: year, StartMonth: start, EndMonth: end}
	req.RequireLatest = wire.RequireLatest

	if wire.AsOf != "" {
		asOf, err := time.Parse(time.RFC3339Nano, wire.AsOf)
		if err != nil {
			return req, fmt.Errorf("asOf must be RFC3339: %w", err)
		}
		req.AsOf = asOf
	}
	return req, nil
}

func yearString(v any) (string, error) {
	switch y := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(y), nil
	case float64:
		if y != math.Trunc(y) {
			return "", fmt.Errorf("year must be a whole number, got %v", y)
		}
		return strconv.Itoa(int(y)), nil
	default:
		return "", fmt.Errorf("year must be a string or number")
	}
}

func monthInt(field string, v any) (int, error) {
	switch m := v.(type) {
	case nil:
		return 0, nil
	case float64:
		if m != math.Trunc(m) {
			return 0, fmt.Errorf("%s must be a whole number, got %v", field, m)
		}
		return int(m), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(m))
		if err != nil {
			return 0, fmt.Errorf("%s must be a number, got %q", field, m)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number", field)
	}
}

// FromStructComputeRequest maps a gRPC request document into a ComputeRequest.
func FromStructComputeRequest(in *structpb.Struct) (models.ComputeRequest, error) {
	if in == nil {
		return models.ComputeRequest{}, fmt.Errorf("request is nil")
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return models.ComputeRequest{}, fmt.Errorf("encode request: %w", err)
	}
	return DecodeComputeRequest(data)
}

// ToStruct converts any JSON-serialisable value into a Struct document.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert response: %w", err)
	}
	return out, nil
}

// FromStruct decodes a Struct document into v.
func FromStruct(in *structpb.Struct, v any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// GRPCError maps service errors onto gRPC status codes.
func GRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, models.ErrInvalidFilter):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, models.ErrNoSnapshot):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, models.ErrStaleSnapshot):
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.Internal, "computation failed")
	}
}

// HTTPStatus maps service errors onto HTTP status codes.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNoSnapshot):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrStaleSnapshot):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
