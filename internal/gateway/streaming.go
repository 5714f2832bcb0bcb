package gateway

import (
	"errors"
	"io"
	"net/http"
)

// textStream writes answer chunks as text/plain and flushes each one. Headers
// are sent with the first chunk so a failure before any text can still get
// a JSON error response.
type textStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	reqID   string
	started bool
}

func newTextStream(w http.ResponseWriter, reqID string) *textStream {
	return &textStream{w: w, rc: http.NewResponseController(w), reqID: reqID}
}

func (s *textStream) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Request-ID", s.reqID)
	s.w.WriteHeader(http.StatusOK)
}

// Write implements orchestrator.Sink. An error means the client is gone.
func (s *textStream) Write(chunk string) error {
	if chunk == "" {
		return nil
	}
	s.start()
	if _, err := io.WriteString(s.w, chunk); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
