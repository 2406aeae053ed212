// Package models holds the request and response shapes of the HTTP API and
// the backend mode values read from configuration.
package models

import (
	"encoding/json"
	"net/http"

	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Error   bool        `json:"error"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// NewEnvelope builds an Envelope.
func NewEnvelope(isError bool, message string, data interface{}) Envelope {
	return Envelope{
		Error:   isError,
		Message: message,
		Data:    data,
	}
}

// WriteEnvelope writes envelope as the JSON body of a response with status.
func WriteEnvelope(response http.ResponseWriter, status int, envelope Envelope) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)

	if err := json.NewEncoder(response).Encode(envelope); err != nil {
		logger.Log.Debugln("Error calling the `json.NewEncoder(response).Encode()`: ", err)
	}
}

// WriteError writes an error envelope with no data.
func WriteError(response http.ResponseWriter, status int, message string) {
	WriteEnvelope(response, status, NewEnvelope(true, message, nil))
}

// RegisterRequest is the body of POST {base}/register.
type RegisterRequest struct {
	Name     string `json:"name" form:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" form:"email" validate:"required,email"`
	Mobile   string `json:"mobile" form:"mobile" validate:"required,mobile"`
	Password string `json:"password" form:"password" validate:"required,min=6,bcryptlen"`
}

// LoginRequest is the body of POST {base}/login.
type LoginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	user.PublicView
	Token string `json:"token"`
}

// HealthResponse is the payload of GET /health.
type HealthResponse struct {
	Status      string            `json:"status"`
	Service     string            `json:"service"`
	Environment string            `json:"environment"`
	Timestamp   string            `json:"timestamp"`
	Backends    map[string]string `json:"backends"`
}

// BackendMode selects which data backends the process connects to.
type BackendMode string

// Backend modes accepted in DB_TYPE.
const (
	BackendModeNone       BackendMode = "none"
	BackendModeRelational BackendMode = "postgres"
	BackendModeDocument   BackendMode = "mongo"
	BackendModeMulti      BackendMode = "multi"
	BackendModeMemory     BackendMode = "memory"
)

// ParseBackendMode maps a DB_TYPE value to a BackendMode. Unknown values,
// including the empty string, map to BackendModeNone.
func ParseBackendMode(value string) BackendMode {
	switch mode := BackendMode(value); mode {
	case BackendModeRelational, BackendModeDocument, BackendModeMulti, BackendModeMemory:
		return mode
	}

	return BackendModeNone
}

// NeedsRelational reports whether the mode requires the PostgreSQL backend.
func (m BackendMode) NeedsRelational() bool {
	return m == BackendModeRelational || m == BackendModeMulti
}

// NeedsDocument reports whether the mode requires the MongoDB backend.
func (m BackendMode) NeedsDocument() bool {
	return m == BackendModeDocument || m == BackendModeMulti
}
