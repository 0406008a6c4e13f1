package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Mindburn-Labs/caseflow/pkg/event"
	"github.com/Mindburn-Labs/caseflow/pkg/objectstore"
	"github.com/Mindburn-Labs/caseflow/pkg/queue"
	"github.com/Mindburn-Labs/caseflow/pkg/store"
)

const maxBodyBytes = 1 << 20 // 1MB limit

// InjectEventRequest is the POST /v1/events body.
type InjectEventRequest struct {
	CaseID     string        `json:"case_id"`
	EventType  string        `json:"event_type"`
	Payload    event.Payload `json:"payload,omitempty"`
	SenderID   string        `json:"sender_id,omitempty"`
	SenderRole string        `json:"sender_role,omitempty"`
	Source     string        `json:"source,omitempty"`
}

// InjectEventResponse acknowledges an accepted event.
type InjectEventResponse struct {
	EventID       string `json:"event_id"`
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
}

func (s *Server) handleInjectEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := s.eventSchema.Validate(raw); err != nil {
		WriteBadRequest(w, "Request body failed schema validation: "+err.Error())
		return
	}

	data, _ := json.Marshal(raw)
	var req InjectEventRequest
	if err := json.Unmarshal(data, &req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	evtType := event.Type(req.EventType)
	if !evtType.Valid() || evtType.IsHandoff() {
		WriteBadRequest(w, "event_type must be a known inbound type")
		return
	}
	role := event.Role(req.SenderRole)
	if role == "" {
		role = event.RoleSubject
	}
	source := req.Source
	if source == "" {
		source = "api"
	}

	evt := event.NewInbound(evtType, req.CaseID, req.Payload, req.SenderID, role, source)
	if err := s.queue.Enqueue(evt); err != nil {
		if errors.Is(err, queue.ErrStopped) {
			WriteServiceUnavailable(w, "Event queue is shutting down")
			return
		}
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(InjectEventResponse{
		EventID:       evt.EventID,
		CorrelationID: evt.CorrelationID,
		Status:        "queued",
	})
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("id")
	rec, _, err := s.cases.Load(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			WriteNotFound(w, "No case with that id")
			return
		}
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func (s *Server) handleCaseLog(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("id")
	entries, err := s.procLog.ListByCase(r.Context(), caseID, 100)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	if entries == nil {
		entries = []*store.LogEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}

func (s *Server) handleResetCase(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("id")

	// Free the case's slots before wiping its record.
	if _, err := s.registry.CancelBooking(r.Context(), caseID); err != nil {
		s.logger.Warn("reset could not cancel booking", "case_id", caseID, "error", err)
	}
	if _, err := s.registry.ReleaseHolds(r.Context(), caseID); err != nil {
		s.logger.Warn("reset could not release holds", "case_id", caseID, "error", err)
	}

	rec, err := s.cases.Reset(r.Context(), caseID)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	s.logger.Info("case reset", "case_id", caseID)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := s.deadLetters.ListPending(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}
	if letters == nil {
		letters = []*store.DeadLetter{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(letters)
}

// ReplayResponse acknowledges a replayed dead letter.
type ReplayResponse struct {
	LetterID string `json:"letter_id"`
	EventID  string `json:"event_id"`
	Status   string `json:"status"`
}

func (s *Server) handleReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	letterID := r.PathValue("id")
	letter, err := s.deadLetters.Get(r.Context(), letterID)
	if err != nil {
		if errors.Is(err, store.ErrLetterNotFound) {
			WriteNotFound(w, "No dead letter with that id")
			return
		}
		WriteInternal(w, err)
		return
	}
	if letter.Status == store.DeadLetterReplayed {
		WriteConflict(w, "Dead letter already replayed")
		return
	}

	// Mark before enqueueing: a letter that stayed PENDING after a
	// successful enqueue would be replayable a second time.
	if err := s.deadLetters.MarkReplayed(r.Context(), letterID); err != nil {
		WriteInternal(w, err)
		return
	}
	if err := s.queue.Enqueue(letter.Envelope); err != nil {
		s.logger.Error("dead letter marked replayed but not enqueued",
			"letter_id", letterID, "case_id", letter.Envelope.CaseID, "error", err)
		WriteServiceUnavailable(w, "Event queue is shutting down")
		return
	}
	s.logger.Info("dead letter replayed", "letter_id", letterID, "case_id", letter.Envelope.CaseID)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ReplayResponse{
		LetterID: letterID,
		EventID:  letter.Envelope.EventID,
		Status:   "replayed",
	})
}

// HealthResponse is the GET /healthz body.
type HealthResponse struct {
	Status       string `json:"status"`
	ActiveCases  int    `json:"active_cases"`
	QueuedEvents int    `json:"queued_events"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.cases.List(r.Context()); err != nil {
		WriteServiceUnavailable(w, "Object store unreachable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:       "ok",
		ActiveCases:  s.queue.ActiveCases(),
		QueuedEvents: s.queue.QueuedEvents(),
	})
}
