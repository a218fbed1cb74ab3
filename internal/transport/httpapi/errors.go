package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	internalErrorMessage = "Internal server error."
	badBodyMessage       = "Request body must be valid JSON."
)

// errBadRequestBody — тело запроса не разобрано как JSON.
var errBadRequestBody = errors.New("invalid request body")

// statusFor отображает ошибку приложения в HTTP-статус и сообщение клиенту.
func statusFor(err error) (int, string) {
	var validation *domain.ValidationError
	switch {
	case errors.Is(err, errBadRequestBody):
		return http.StatusBadRequest, badBodyMessage
	case domain.IsNotFound(err):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &validation), domain.IsConflict(err):
		return http.StatusBadRequest, err.Error()
	}
	if orderErr, ok := domain.AsOrderError(err); ok {
		return http.StatusBadRequest, orderErr.Message
	}
	return http.StatusInternalServerError, internalErrorMessage
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	writeJSON(w, status, errorResponse{Status: "error", Message: message})
}
