package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/linesmerrill/commute-permit-api/config"
	"github.com/linesmerrill/commute-permit-api/databases"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

// decodeBody decodes the JSON body into v and runs its validate tags
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return false
	}
	if err := validate.Struct(v); err != nil {
		config.ErrorStatus("invalid request", http.StatusBadRequest, w, err)
		return false
	}
	return true
}

// lookupStatus maps a store error to 404 or 500
func lookupStatus(err error) int {
	if errors.Is(err, databases.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
