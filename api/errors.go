package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error is a non-2xx business response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

const maxErrorBody = 64 << 10

// errorFromResponse builds an *Error from resp and closes its body. The
// message comes from the JSON "error", "message" or "msg" field, in that
// order, and falls back to the status text.
func errorFromResponse(resp *http.Response) *Error {
	defer resp.Body.Close()

	e := &Error{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if json.Unmarshal(raw, &body) == nil {
		for _, m := range []string{body.Error, body.Message, body.Msg} {
			if strings.TrimSpace(m) != "" {
				e.Message = m
				return e
			}
		}
	}
	e.Message = http.StatusText(resp.StatusCode)
	return e
}
