package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
)

func isJobTerminal(status JobStatus) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// eventWriter frames server-sent events on a flushing response.
type eventWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newEventWriter(w http.ResponseWriter) (*eventWriter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &eventWriter{w: w, f: f}, true
}

func (e *eventWriter) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	e.f.Flush()
	return nil
}

// streamJob sends the job snapshot as a "status" event, then relays job
// events until the job reaches a terminal state or the client goes away.
func streamJob(w http.ResponseWriter, r *http.Request, job *IngestJob) {
	ew, ok := newEventWriter(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events := job.AddListener()
	defer job.RemoveListener(events)

	if err := ew.send("status", job.Snapshot()); err != nil || isJobTerminal(job.GetStatus()) {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := ew.send(ev.Type, ev); err != nil || isJobTerminal(job.GetStatus()) {
				return
			}
		}
	}
}
