package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/crmbridge/bridge-server/internal/errors"
	"github.com/crmbridge/bridge-server/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.ValidationError("Request body too large")
		}
		return apperrors.ValidationError("Invalid request body").WithCause(err)
	}
	return nil
}
