package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ticketchat/pkg/apperr"
)

type errBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(err), errBody{
		Error: apperr.PublicMessage(err),
		Code:  string(apperr.CodeOf(err)),
	})
}

// parsePage reads page/limit query parameters. Absent values fall back to
// the first page of twenty; range checks happen in the store.
func parsePage(r *http.Request) (int, int, error) {
	page, limit := 1, 20
	if s := r.URL.Query().Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperr.Validation("page must be an integer")
		}
		page = n
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperr.Validation("limit must be an integer")
		}
		limit = n
	}
	return page, limit, nil
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid json body")
	}
	return nil
}
