package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/attar-shop/internal/auth"
	"github.com/vasiliy-maslov/attar-shop/internal/catalog"
	"github.com/vasiliy-maslov/attar-shop/internal/order"
	"github.com/vasiliy-maslov/attar-shop/internal/payment"
	"github.com/vasiliy-maslov/attar-shop/internal/pricing"
	"github.com/vasiliy-maslov/attar-shop/internal/review"
)

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

// ListResponse is the shared pagination envelope.
type ListResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload: %v", err))
		return false
	}
	return true
}

func validateStruct(w http.ResponseWriter, validate *validator.Validate, payload any) bool {
	err := validate.Struct(payload)
	if err == nil {
		return true
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
		respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		return false
	}

	respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
		Error:   "Validation failed",
		Details: formatValidationErrors(validationErrors),
	})
	return false
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		switch fieldErr.Tag() {
		case "required":
			details[fieldErr.Field()] = "is required"
		case "min":
			details[fieldErr.Field()] = "must be at least " + fieldErr.Param()
		case "max":
			details[fieldErr.Field()] = "must be at most " + fieldErr.Param()
		case "uuid4", "uuid":
			details[fieldErr.Field()] = "must be a valid UUID"
		default:
			details[fieldErr.Field()] = "failed on " + fieldErr.Tag()
		}
	}
	return details
}

func paginationParams(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return offset, limit
}

func identityOrFail(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	return identity, true
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrSizeNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, review.ErrReviewNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, pricing.ErrInvalidCoupon),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, review.ErrDuplicateReview),
		errors.Is(err, payment.ErrOrderNotPayable):
		return http.StatusConflict
	case errors.Is(err, order.ErrNotOwner),
		errors.Is(err, review.ErrNotAuthor),
		errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, review.ErrInvalidRating),
		errors.Is(err, payment.ErrUnknownEventType):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
