package common

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/stacklok/plugin-mirror/internal/service"
)

// GetQueryParam returns the first non-empty value among the given query
// parameter names. Values containing whitespace are rejected.
func GetQueryParam(r *http.Request, names ...string) (string, error) {
	query := r.URL.Query()
	for _, name := range names {
		value := strings.TrimSpace(query.Get(name))
		if value == "" {
			continue
		}
		if strings.ContainsAny(value, " \t\n\r") {
			return "", &service.ValidationError{Field: name, Message: "cannot contain whitespace"}
		}
		return value, nil
	}
	return "", nil
}

// GetQueryInt parses an integer query parameter. ok is false when the
// parameter is absent.
func GetQueryInt(r *http.Request, name string) (value int, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	value, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, &service.ValidationError{Field: name, Message: "must be an integer"}
	}
	return value, true, nil
}

// GetQueryBool parses a boolean query parameter, defaulting to false
func GetQueryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &service.ValidationError{Field: name, Message: "must be a boolean"}
	}
	return value, nil
}
