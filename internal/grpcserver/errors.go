package grpcserver

import (
	"errors"
	"strconv"

	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain is the ErrorInfo domain attached to every engine failure.
const ErrorDomain = "points"

const (
	metadataKind   = "kind"
	metadataStatus = "status"

	internalErrorMessage = "internal error"
)

var codeByKind = map[points.ErrorKind]codes.Code{
	points.KindInvalidArgument:     codes.InvalidArgument,
	points.KindNotFound:            codes.NotFound,
	points.KindInvalidState:        codes.FailedPrecondition,
	points.KindInsufficientBalance: codes.FailedPrecondition,
	points.KindAllowanceExceeded:   codes.FailedPrecondition,
	points.KindNoCapacity:          codes.ResourceExhausted,
	points.KindPermissionDenied:    codes.PermissionDenied,
	points.KindTransientConflict:   codes.Aborted,
	points.KindDuplicateRequest:    codes.AlreadyExists,
	points.KindInternal:            codes.Internal,
}

// CodeFor returns the gRPC code of an engine error kind.
func CodeFor(kind points.ErrorKind) codes.Code {
	if code, ok := codeByKind[kind]; ok {
		return code
	}
	return codes.Internal
}

// mapToGRPCError converts an engine failure into a status carrying an ErrorInfo with the
// stable code as reason and the numeric details as metadata.
func mapToGRPCError(source error) error {
	detail := points.Describe(source)
	message := detail.Message
	if detail.Kind == points.KindInternal {
		message = internalErrorMessage
	}
	st := status.New(CodeFor(detail.Kind), message)
	info := &errdetails.ErrorInfo{
		Reason:   detail.Code,
		Domain:   ErrorDomain,
		Metadata: map[string]string{metadataKind: detail.Kind.String()},
	}
	for key, value := range detail.Details {
		info.Metadata[key] = strconv.FormatInt(value, 10)
	}
	if detail.Status != "" {
		info.Metadata[metadataStatus] = detail.Status
	}
	withDetails, err := st.WithDetails(info)
	if err != nil {
		return st.Err()
	}
	return withDetails.Err()
}

// ErrorInfoFrom extracts the engine ErrorInfo from a status error returned by the service.
func ErrorInfoFrom(err error) (*errdetails.ErrorInfo, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return nil, false
	}
	for _, detail := range st.Details() {
		info, isInfo := detail.(*errdetails.ErrorInfo)
		if isInfo && info.GetDomain() == ErrorDomain {
			return info, true
		}
	}
	return nil, false
}

// isStatusError reports whether err already carries a gRPC status.
func isStatusError(err error) bool {
	var withStatus interface{ GRPCStatus() *status.Status }
	return errors.As(err, &withStatus)
}
