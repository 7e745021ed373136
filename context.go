package authclient

import (
	"context"

	"github.com/MrEthical07/authclient/internal/coordinator"
)

// RequestIDHeader is the header carrying the per-request correlation id.
const RequestIDHeader = coordinator.RequestIDHeader

// WithRequestID pins the X-Request-ID used for requests issued with ctx. The
// same id is sent on the first attempt and on the replay after a refresh.
// Without it every logical request gets a fresh uuid.
func WithRequestID(ctx context.Context, id string) context.Context {
	return coordinator.WithRequestID(ctx, id)
}

// RequestIDFromContext returns the id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	return coordinator.RequestIDFromContext(ctx)
}

type actionLabelContextKey struct{}

// WithActionLabel sets the wording used for the action in a remote
// rate-limit message ("Too many <label> attempts...").
func WithActionLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, actionLabelContextKey{}, label)
}

func actionLabelFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	label, _ := ctx.Value(actionLabelContextKey{}).(string)
	return label
}
