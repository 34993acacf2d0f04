package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/detox/internal/domain"
)

// ToStruct converts any JSON-encodable object into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("not an object: %w", err)
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes s into v, the inverse of ToStruct.
func FromStruct(s *structpb.Struct, v any) error {
	raw, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func mustStruct(v any) (*structpb.Struct, error) {
	s, err := ToStruct(v)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

// toStatus maps a failure kind onto a gRPC status.
func toStatus(op string, err error) error {
	code := codes.Internal
	switch domain.Kind(err) {
	case domain.ErrValidation:
		code = codes.InvalidArgument
	case domain.ErrNotFound:
		code = codes.NotFound
	case domain.ErrTimeout:
		code = codes.DeadlineExceeded
	case domain.ErrAuthUnavailable:
		code = codes.Unauthenticated
	case domain.ErrDirectoryUnavailable, domain.ErrMessageStoreUnavailable, domain.ErrSubscription, domain.ErrPostStoreUnavailable:
		code = codes.Unavailable
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
