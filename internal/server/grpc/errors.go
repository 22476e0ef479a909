package grpc

import (
	"context"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var kindCodes = map[common.Kind]codes.Code{
	common.KindInvalidArgument:    codes.InvalidArgument,
	common.KindUnauthenticated:    codes.Unauthenticated,
	common.KindPermissionDenied:   codes.PermissionDenied,
	common.KindNotFound:           codes.NotFound,
	common.KindFailedPrecondition: codes.FailedPrecondition,
}

// toStatus converts a service error into a status error. Internal errors
// are logged and reach the caller only as a generic message.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	if code, ok := kindCodes[common.KindOf(err)]; ok {
		return status.Error(code, common.MessageOf(err))
	}
	s.logger.Error(ctx, "request failed", "error", err, "request_id", requestIDFromContext(ctx))
	return status.Error(codes.Internal, "internal error")
}
