package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// envelope is the uniform response shape: {status, count?, data?, message?}.
type envelope struct {
	Status  string `json:"status"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: data})
}

func writeList(w http.ResponseWriter, count int, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Count: &count, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Status: "error", Message: msg})
}
