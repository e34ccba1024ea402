package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/verdict/internal/rules"
	"github.com/solatis/verdict/internal/types"
)

// toStatus maps evaluation errors onto gRPC codes.
// Auth errors are mapped in the auth interceptors.
// Definition and context errors map to INVALID_ARGUMENT.
// Rule-graph and comparison failures map to FAILED_PRECONDITION: the rule set, not the
// request, is at fault.
// Context timeouts map to DEADLINE_EXCEEDED.
func toStatus(err error) error {
	var (
		ve *types.ValidationError
		ce *rules.ComparisonError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &ce),
		errors.Is(err, types.ErrUnknownRule),
		errors.Is(err, types.ErrGraphTooDeep):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
