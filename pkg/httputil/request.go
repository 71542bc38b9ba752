package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantd/pkg/apperr"
)

// ParseJSON decodes the request body into dest. Unknown fields and trailing
// data are rejected. Failures are apperr validation errors.
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return apperr.Validation("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Validation("request body is required")
		case errors.As(err, &maxErr):
			return apperr.Newf(apperr.KindValidation, "request body exceeds %d bytes", maxErr.Limit)
		default:
			return apperr.Wrap(apperr.KindValidation, "invalid JSON body", err)
		}
	}
	if dec.More() {
		return apperr.Validation("request body must contain a single JSON object")
	}
	return nil
}

// ParsePathString extracts a required path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", apperr.Newf(apperr.KindValidation, "missing path parameter: %s", key)
	}
	return str, nil
}

// ParsePathUUID extracts a path parameter that must be a uuid and returns
// its canonical string form
func ParsePathUUID(r *http.Request, key string) (string, error) {
	str, err := ParsePathString(r, key)
	if err != nil {
		return "", err
	}
	id, err := uuid.Parse(str)
	if err != nil {
		return "", apperr.Newf(apperr.KindValidation, "invalid %s: must be a uuid", key)
	}
	return id.String(), nil
}

// ParseQueryInt parses an integer query parameter, returning defaultVal when absent
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, apperr.Newf(apperr.KindValidation, "invalid integer for %s: %s", key, str)
	}
	return val, nil
}
