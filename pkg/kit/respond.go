package kit

import (
	"encoding/json"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// MsgInternal is the only text a client ever sees for an unexpected fault.
const MsgInternal = "Error interno del servidor"

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Item    any    `json:"item,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{
		Success:   false,
		Error:     msg,
		RequestID: chimw.GetReqID(r.Context()),
	})
}

func WriteInternal(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusInternalServerError, MsgInternal)
}

func WriteMessage(w http.ResponseWriter, msg string, item any) {
	WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: msg, Item: item})
}
