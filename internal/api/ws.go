package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"droc/internal/auth"
	"droc/internal/model"
	"droc/internal/partition"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsMessage is a server message on /v1/plans/ws.
type wsMessage struct {
	Type   string `json:"type"`
	PlanID string `json:"planId,omitempty"`
	Data   any    `json:"data,omitempty"`
}

const wsWriteTimeout = 10 * time.Second

// PlanWSHandler handles /v1/plans/ws. Every text message is a plan request;
// the server answers with progress messages and then one result or error.
// Requests on one connection run one at a time.
func (s *Server) PlanWSHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(maxBodyBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the reader cancels in-flight plans when the client goes away
	reqs := make(chan []byte)
	go func() {
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case reqs <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	write := func(m wsMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(m)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-reqs:
			if err := s.wsPlan(ctx, p, data, write); err != nil {
				return
			}
		}
	}
}

// wsPlan serves one request. It returns an error only when the connection
// is no longer writable.
func (s *Server) wsPlan(ctx context.Context, p auth.Principal, data []byte, write func(wsMessage) error) error {
	fail := func(planID string, pr Problem) error {
		return write(wsMessage{Type: EventError, PlanID: planID, Data: pr})
	}
	var req model.PlanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fail("", newProblem(http.StatusBadRequest, "Invalid JSON", err.Error(), "/v1/plans/ws"))
	}
	if err := validatePlanRequest(&req); err != nil {
		return fail("", newProblem(http.StatusBadRequest, "Invalid plan request", err.Error(), "/v1/plans/ws"))
	}
	if req.TenantID != "" && req.TenantID != p.Tenant && !p.IsAdmin() {
		return fail("", newProblem(http.StatusForbidden, "Forbidden", "cannot plan for another tenant", "/v1/plans/ws"))
	}
	if req.TenantID == "" {
		req.TenantID = p.Tenant
	}
	preq, err := req.ToPartition()
	if err != nil {
		return fail("", planProblem(err, "/v1/plans/ws"))
	}

	planID := newPlanID()
	var writeErr error
	res, err := s.execute(ctx, planID, req, preq, func(ev partition.Event) {
		if writeErr == nil {
			writeErr = write(wsMessage{Type: EventProgress, PlanID: planID, Data: ev})
		}
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		return fail(planID, planProblem(err, "/v1/plans/"+planID))
	}
	return write(wsMessage{Type: EventResult, PlanID: planID, Data: res})
}
