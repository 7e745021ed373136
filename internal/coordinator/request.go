package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// RequestIDHeader carries the correlation id of one logical request. It is
// identical on the first attempt and the replay.
const RequestIDHeader = "X-Request-ID"

type requestIDContextKey struct{}

// WithRequestID pins the correlation id used for requests issued with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// replayable returns a private copy of req whose body can be produced again
// for every attempt. Bodies without GetBody are buffered once.
func replayable(ctx context.Context, req *http.Request) (*http.Request, error) {
	base := req.Clone(ctx)
	if base.Body == nil || base.Body == http.NoBody || base.GetBody != nil {
		return base, nil
	}

	data, err := io.ReadAll(base.Body)
	_ = base.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReplayable, err)
	}
	base.ContentLength = int64(len(data))
	base.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	base.Body, _ = base.GetBody()
	return base, nil
}

// attempt clones base for one send with a fresh body and the given token.
func attempt(base *http.Request, token string) (*http.Request, error) {
	r := base.Clone(base.Context())
	if base.GetBody != nil {
		body, err := base.GetBody()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotReplayable, err)
		}
		r.Body = body
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	} else {
		r.Header.Del("Authorization")
	}
	return r, nil
}

func drainClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
