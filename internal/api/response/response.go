package response

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
}

// JSON writes data as a 200 response.
func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

// Status writes data with the given status code.
func Status(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

// Error writes the flat {"error": message} body the web client expects.
func Error(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
