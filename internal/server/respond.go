package server

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodmix/internal/services"
	"github.com/desertthunder/moodmix/internal/shared"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator instance.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

var fieldMessages = map[string]string{
	"required":   "%s is required",
	"startswith": "%s must start with %s",
	"max":        "%s must be at most %s",
}

// validateRequest validates req and returns a readable message, or "" when it is valid.
func validateRequest(req any) string {
	err := getValidator().Struct(req)
	if err == nil {
		return ""
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fe.Field()
		template, ok := fieldMessages[fe.Tag()]
		if !ok {
			messages = append(messages, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
			continue
		}
		if strings.Count(template, "%s") == 2 {
			messages = append(messages, fmt.Sprintf(template, field, fe.Param()))
		} else {
			messages = append(messages, fmt.Sprintf(template, field))
		}
	}
	return strings.Join(messages, "; ")
}

// decodeRequest decodes a JSON body into req and validates it.
// Returns "" on success or the message to send with a 422.
func decodeRequest(r *http.Request, req any) string {
	if r.Body == nil {
		return "request body is required"
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return "invalid JSON body: " + err.Error()
	}
	return validateRequest(req)
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Error("failed to write JSON response", "error", err)
	}
}

// writeError writes {"detail": detail} with the given status.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

// errorStatus maps an error onto a response status and detail.
func errorStatus(err error) (int, string) {
	var statusErr *services.StatusError

	switch {
	case errors.Is(err, shared.ErrNotAuthenticated),
		errors.Is(err, shared.ErrSessionNotFound),
		errors.Is(err, shared.ErrSessionExpired),
		errors.Is(err, shared.ErrNoRefreshToken):
		return http.StatusUnauthorized, "User not logged in"
	case errors.Is(err, shared.ErrInvalidInput):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, shared.ErrCircuitOpen):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, shared.ErrUpstreamFormat):
		return http.StatusInternalServerError, err.Error()
	case errors.As(err, &statusErr):
		detail := statusErr.Body
		if detail == "" {
			detail = statusErr.Error()
		}
		return statusErr.StatusCode, detail
	case errors.Is(err, shared.ErrRefreshFailed), errors.Is(err, shared.ErrAuthFailed):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, shared.ErrAPIRequest):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// writeErr maps err onto a response and logs server-side failures.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.logger.Warn("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, detail)
}
