package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/attar-shop/internal/payment"
)

type PaymentHandler struct {
	service       payment.Service
	webhookSecret string
}

func NewPaymentHandler(service payment.Service, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{
		service:       service,
		webhookSecret: webhookSecret,
	}
}

func (h *PaymentHandler) HandleCreateIntent(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrFail(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	intent, err := h.service.CreateIntentForOrder(r.Context(), identity.UserID, identity.IsAdmin(), orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to create payment intent via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to create payment intent")
		return
	}

	respondWithJSON(w, http.StatusCreated, intent)
}

// HandleWebhook accepts the gateway's asynchronous signals. The shared-secret
// header stands in for the gateway's signature scheme.
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.webhookSecret)) != 1 {
		respondWithError(w, http.StatusUnauthorized, "Invalid webhook secret")
		return
	}

	var event payment.WebhookEvent
	if !decodeJSON(w, r, &event) {
		return
	}

	if err := h.service.HandleWebhook(r.Context(), event); err != nil {
		log.Error().Err(err).Str("event_type", event.Type).Msg("Failed to handle payment webhook")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to handle webhook event")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
