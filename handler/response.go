package handler

import (
	"encoding/json"
	"net/http"
)

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSON renders v as the response body with status 200.
func JSON(v any) Response {
	return jsonResponse{status: http.StatusOK, body: v}
}

// JSONWithStatus renders v with a custom status code.
func JSONWithStatus(status int, v any) Response {
	return jsonResponse{status: status, body: v}
}

// Error renders err through the same mapping as JSONErrorHandler.
func Error(err error) Response {
	status, body := errorBody(err)
	return jsonResponse{status: status, body: body}
}

type emptyResponse struct {
	status int
}

func (e emptyResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

// Empty creates an empty response with status 204 (No Content).
func Empty() Response {
	return emptyResponse{status: http.StatusNoContent}
}
