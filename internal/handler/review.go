package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/attar-shop/internal/review"
)

type ReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Title   string `json:"title" validate:"max=120"`
	Comment string `json:"comment" validate:"max=2000"`
}

type VoteResponse struct {
	Voted        bool `json:"voted"`
	HelpfulCount int  `json:"helpful_count"`
}

type ReviewHandler struct {
	service  review.Service
	validate *validator.Validate
}

func NewReviewHandler(service review.Service) *ReviewHandler {
	return &ReviewHandler{
		service:  service,
		validate: validator.New(),
	}
}

func reviewErrorMessage(err error) string {
	switch {
	case errors.Is(err, review.ErrReviewNotFound):
		return "Review not found"
	case errors.Is(err, review.ErrDuplicateReview):
		return "You have already reviewed this product"
	case errors.Is(err, review.ErrNotAuthor):
		return "Review belongs to another user"
	case errors.Is(err, review.ErrInvalidRating):
		return "Rating must be between 1 and 5"
	default:
		return "Failed to process review"
	}
}

func (h *ReviewHandler) HandleListReviews(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	offset, limit := paginationParams(r)
	reviews, total, err := h.service.ListByProduct(r.Context(), productID, offset, limit)
	if err != nil {
		log.Error().Err(err).Stringer("product_id", productID).Msg("Failed to list reviews via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list reviews")
		return
	}

	respondWithJSON(w, http.StatusOK, ListResponse{Items: reviews, Total: total})
}

func (h *ReviewHandler) HandleCreateReview(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrFail(w, r)
	if !ok {
		return
	}

	productID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var payload ReviewRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	if !validateStruct(w, h.validate, payload) {
		return
	}

	created, err := h.service.Create(r.Context(), identity.UserID, productID, review.CreateInput{
		Rating:  payload.Rating,
		Title:   payload.Title,
		Comment: payload.Comment,
	})
	if err != nil {
		log.Warn().Err(err).Stringer("product_id", productID).Msg("Failed to create review via service")
		respondWithError(w, mapErrorToStatusCode(err), reviewErrorMessage(err))
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *ReviewHandler) HandleUpdateReview(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrFail(w, r)
	if !ok {
		return
	}

	reviewID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var payload ReviewRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	if !validateStruct(w, h.validate, payload) {
		return
	}

	updated, err := h.service.Update(r.Context(), identity.UserID, reviewID, review.CreateInput{
		Rating:  payload.Rating,
		Title:   payload.Title,
		Comment: payload.Comment,
	})
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), reviewErrorMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *ReviewHandler) HandleDeleteReview(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrFail(w, r)
	if !ok {
		return
	}

	reviewID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	if err := h.service.Delete(r.Context(), identity.UserID, identity.IsAdmin(), reviewID); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), reviewErrorMessage(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ReviewHandler) HandleToggleHelpfulVote(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrFail(w, r)
	if !ok {
		return
	}

	reviewID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	voted, count, err := h.service.ToggleHelpfulVote(r.Context(), identity.UserID, reviewID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), reviewErrorMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, VoteResponse{Voted: voted, HelpfulCount: count})
}
