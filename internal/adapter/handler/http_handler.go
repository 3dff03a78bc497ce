package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rl1809/shop-stock/internal/core/domain"
	"github.com/rl1809/shop-stock/internal/core/service"
	"github.com/rl1809/shop-stock/internal/port"
)

type HTTPHandler struct {
	session     *service.Session
	engine      *service.SyncEngine
	mutations   *service.MutationService
	dispatcher  *service.Dispatcher
	broadcaster *Broadcaster
}

type UpsertHTTPRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
}

type UpsertHTTPResponse struct {
	ID          string `json:"id"`
	Created     bool   `json:"created"`
	CloseEditor bool   `json:"close_editor"`
}

type AdjustHTTPRequest struct {
	Delta int `json:"delta"`
}

type ConfirmHTTPRequest struct {
	Answer string `json:"answer"`
}

type ConfirmationResponse struct {
	Token     string    `json:"token"`
	ItemID    string    `json:"item_id"`
	Prompt    string    `json:"prompt"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

type SessionResponse struct {
	AppID         string `json:"app_id"`
	UserID        string `json:"user_id,omitempty"`
	Anonymous     bool   `json:"anonymous"`
	Authenticated bool   `json:"authenticated"`
	State         string `json:"state"`
}

type ItemResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Quantity    int       `json:"quantity"`
	Price       string    `json:"price"`
	OwnerID     string    `json:"owner_id"`
	Version     int64     `json:"version"`
	Status      string    `json:"status"`
	CanDecrease bool      `json:"can_decrease"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ViewResponse struct {
	Items []ItemResponse `json:"items"`
	Empty bool           `json:"empty"`
	Stale bool           `json:"stale"`
}

type NotificationResponse struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func NewHTTPHandler(
	session *service.Session,
	engine *service.SyncEngine,
	mutations *service.MutationService,
	broadcaster *Broadcaster,
) *HTTPHandler {
	return &HTTPHandler{
		session:     session,
		engine:      engine,
		mutations:   mutations,
		dispatcher:  service.NewDispatcher(engine, mutations),
		broadcaster: broadcaster,
	}
}

func (h *HTTPHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/api/session", h.Session).Methods(http.MethodGet)
	r.HandleFunc("/api/items", h.ListItems).Methods(http.MethodGet)
	r.HandleFunc("/api/items", h.UpsertItem).Methods(http.MethodPost)
	r.HandleFunc("/api/items/{id}/adjust", h.AdjustItem).Methods(http.MethodPost)
	r.HandleFunc("/api/items/{id}/edit", h.EditItem).Methods(http.MethodPost)
	r.HandleFunc("/api/items/{id}/delete", h.DeleteItem).Methods(http.MethodPost)
	r.HandleFunc("/api/confirmations/{token}", h.Confirm).Methods(http.MethodPost)
	r.HandleFunc("/api/events", h.Events).Methods(http.MethodGet)
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) Session(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.session.Identity()
	writeJSON(w, http.StatusOK, SessionResponse{
		AppID:         h.session.AppID(),
		UserID:        identity.UserID,
		Anonymous:     identity.Anonymous,
		Authenticated: ok,
		State:         string(h.engine.State()),
	})
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toViewResponse(h.engine.View()))
}

func (h *HTTPHandler) UpsertItem(w http.ResponseWriter, r *http.Request) {
	var req UpsertHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	res, err := h.mutations.Upsert(r.Context(), service.UpsertInput{
		ID:       req.ID,
		Name:     req.Name,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, UpsertHTTPResponse{ID: res.ID, Created: res.Created, CloseEditor: res.CloseEditor})
}

func (h *HTTPHandler) AdjustItem(w http.ResponseWriter, r *http.Request) {
	var req AdjustHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	var action service.Action
	switch req.Delta {
	case 1:
		action = service.ActionIncrease
	case -1:
		action = service.ActionDecrease
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "delta must be 1 or -1"})
		return
	}

	if _, err := h.dispatcher.Dispatch(r.Context(), mux.Vars(r)["id"], action); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) EditItem(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.Dispatch(r.Context(), mux.Vars(r)["id"], service.ActionEdit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpsertHTTPRequest{
		ID:       res.Edit.ID,
		Name:     res.Edit.Name,
		Quantity: res.Edit.Quantity,
		Price:    res.Edit.Price,
	})
}

func (h *HTTPHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.Dispatch(r.Context(), mux.Vars(r)["id"], service.ActionDelete)
	if err != nil {
		writeError(w, err)
		return
	}
	c := res.Confirmation
	writeJSON(w, http.StatusAccepted, ConfirmationResponse{
		Token:     c.Token,
		ItemID:    c.ItemID,
		Prompt:    c.Prompt,
		ExpiresAt: c.ExpiresAt,
	})
}

func (h *HTTPHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	outcome, err := h.mutations.ConfirmDelete(r.Context(), mux.Vars(r)["token"], req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

// Events streams renders and notifications as server-sent events, starting
// with the current view.
func (h *HTTPHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	viewer := h.broadcaster.Subscribe()
	defer viewer.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, EventRender, toViewResponse(h.engine.View())); err != nil {
		return
	}
	flusher.Flush()

	for {
		ev, ok := viewer.Next(r.Context())
		if !ok {
			return
		}
		var err error
		switch ev.Type {
		case EventRender:
			err = writeEvent(w, EventRender, toViewResponse(ev.View))
		case EventNotify:
			err = writeEvent(w, EventNotify, NotificationResponse{
				Message:  ev.Notification.Message,
				Severity: string(ev.Notification.Severity),
			})
		}
		if err != nil {
			log.Printf("events: client gone: %v", err)
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

func toViewResponse(v domain.View) ViewResponse {
	resp := ViewResponse{Items: make([]ItemResponse, 0, len(v.Items)), Empty: v.Empty, Stale: v.Stale}
	for _, iv := range v.Items {
		resp.Items = append(resp.Items, ItemResponse{
			ID:          iv.Item.ID,
			Name:        iv.Item.Name,
			Quantity:    iv.Item.Quantity,
			Price:       iv.Price,
			OwnerID:     iv.Item.OwnerID,
			Version:     iv.Item.Version,
			Status:      string(iv.Status),
			CanDecrease: iv.CanDecrease,
			CreatedAt:   iv.Item.CreatedAt,
			UpdatedAt:   iv.Item.UpdatedAt,
		})
	}
	return resp
}

// statusFor maps an error from the core to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, service.ErrNoIdentity) {
		return http.StatusUnauthorized
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindWrite:
		if errors.Is(err, port.ErrNotFound) {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindSubscription, domain.KindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("http: unexpected error: %v", err)
	}
	writeJSON(w, status, ErrorResponse{
		Success: false,
		Message: err.Error(),
		Kind:    string(domain.KindOf(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
