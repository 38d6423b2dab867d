package http

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope of every JSON response.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func success(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{Status: "success", Message: message, Data: data})
}

func fail(w http.ResponseWriter, status int, message string, errs any) {
	writeJSON(w, status, Response{Status: "error", Message: message, Errors: errs})
}

func internalError(w http.ResponseWriter) {
	fail(w, http.StatusInternalServerError, "Internal Server Error", nil)
}
