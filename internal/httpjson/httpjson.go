// Package httpjson holds the JSON response helpers shared by handlers and middleware.
package httpjson

import (
	"encoding/json"
	"net/http"

	xerrors "github.com/s1natex/tasks-crud-api/internal/errors"
)

// ErrorBody is the error payload returned by every endpoint.
type ErrorBody struct {
	Code    xerrors.Code `json:"code"`
	Message string       `json:"message"`
}

func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, code xerrors.Code, message string) {
	Write(w, xerrors.HTTPStatus(code), ErrorBody{Code: code, Message: message})
}
