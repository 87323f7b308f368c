package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"research-gateway/internal/domain/model"
)

// sseSink frames stream events as text/event-stream and flushes after each one.
type sseSink struct {
	w  io.Writer
	rc *http.ResponseController
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	// streams outlive the server's write timeout
	_ = rc.SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return nil, err
	}
	return &sseSink{w: w, rc: rc}, nil
}

func (s *sseSink) Send(ev model.StreamEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseSink) Heartbeat() error {
	if _, err := io.WriteString(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}
