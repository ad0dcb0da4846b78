package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/shared"
)

// Receiver applies server-pushed mutations. [cloud.Synchronizer] implements it.
type Receiver interface {
	UpdateObject(objectType string, id uint, payload []byte) error
	CreateObject(objectType string, payload []byte) error
	DeleteObject(objectType string, id uint) error
	ExecuteCommand(name string, configID uint) error
}

// PushMessage is one notification delivered by the push transport.
type PushMessage struct {
	Action          string          `json:"action"` // update, create, delete or execute
	ObjectType      string          `json:"object_type"`
	ObjectID        uint            `json:"object_id"`
	Payload         json.RawMessage `json:"payload"`
	Command         string          `json:"command"`
	ConfigurationID uint            `json:"configuration_id"`
}

const maxPushBody = 1 << 20

// PushHandler receives push notifications on POST /push and routes them to a [Receiver].
type PushHandler struct {
	receiver Receiver
	logger   *log.Logger
}

func NewPushHandler(receiver Receiver, logger *log.Logger) *PushHandler {
	return &PushHandler{receiver: receiver, logger: logger.With("component", "push")}
}

func (h *PushHandler) Routes() []string {
	return []string{"/push"}
}

func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read body: %w", err))
		return
	}

	var msg PushMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", shared.ErrMalformedPayload, err))
		return
	}

	h.logger.Debug("push received", "action", msg.Action, "object", msg.ObjectType, "id", msg.ObjectID)
	if err := h.Dispatch(msg); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dispatch routes msg to the receiver.
func (h *PushHandler) Dispatch(msg PushMessage) error {
	payload := []byte(msg.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	switch msg.Action {
	case "update":
		return h.receiver.UpdateObject(msg.ObjectType, msg.ObjectID, payload)
	case "create":
		return h.receiver.CreateObject(msg.ObjectType, payload)
	case "delete":
		return h.receiver.DeleteObject(msg.ObjectType, msg.ObjectID)
	case "execute":
		return h.receiver.ExecuteCommand(msg.Command, msg.ConfigurationID)
	default:
		return fmt.Errorf("%w: action %q", shared.ErrInvalidArgument, msg.Action)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrMalformedPayload), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrPlaylistNotFound), errors.Is(err, shared.ErrLinkNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrUnknownObject), errors.Is(err, shared.ErrUnknownCommand):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StatusHandler serves the value returned by fn as JSON.
func StatusHandler(fn func() any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, fn())
	})
}
