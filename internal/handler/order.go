package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/attar-shop/internal/catalog"
	"github.com/vasiliy-maslov/attar-shop/internal/order"
	"github.com/vasiliy-maslov/attar-shop/internal/pricing"
)

type OrderItemRequest struct {
	ProductID   string `json:"product_id" validate:"required,uuid4"`
	VolumeLabel string `json:"volume_label" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,min=1"`
}

type AddressRequest struct {
	Name       string `json:"name" validate:"required"`
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

type PlaceOrderRequest struct {
	Items         []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	Shipping      AddressRequest     `json:"shipping_address" validate:"required"`
	PaymentMethod string             `json:"payment_method" validate:"required,oneof=card cash_on_delivery"`
	CouponCode    string             `json:"coupon_code"`
}

type ValidateCartRequest struct {
	Items      []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	CouponCode string             `json:"coupon_code"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type SetStatusRequest struct {
	Status  string `json:"status" validate:"required"`
	Message string `json:"message"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

func itemInputs(items []OrderItemRequest) ([]order.ItemInput, error) {
	inputs := make([]order.ItemInput, 0, len(items))
	for _, item := range items {
		productID, err := uuid.FromString(item.ProductID)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, order.ItemInput{
			ProductID:   productID,
			VolumeLabel: item.VolumeLabel,
			Quantity:    item.Quantity,
		})
	}
	return inputs, nil
}

func orderErrorMessage(err error) string {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		return "Product not found or unavailable"
	case errors.Is(err, catalog.ErrSizeNotFound):
		return "Requested size does not exist for this product"
	case errors.Is(err, catalog.ErrInsufficientStock):
		return "Insufficient stock for one of the requested items"
	case errors.Is(err, pricing.ErrInvalidCoupon):
		return "Invalid coupon code"
	case errors.Is(err, order.ErrOrderNotFound):
		return "Order not found"
	case errors.Is(err, order.ErrNotOwner):
		return "Order belongs to another user"
	case errors.Is(err, order.ErrInvalidTransition):
		return "Order cannot be changed in its current status"
	case errors.Is(err, order.ErrEmptyOrder):
		return "Order must contain at least one item"
	default:
		return "Failed to process order"
	}
}

func (h *OrderHandler) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrFail(w, r)
	if !ok {
		return
	}

	var payload PlaceOrderRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	if !validateStruct(w, h.validate, payload) {
		return
	}

	items, err := itemInputs(payload.Items)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid product id in items")
		return
	}

	placed, err := h.service.PlaceOrder(r.Context(), identity.UserID, order.PlaceOrderInput{
		Items: items,
		Shipping: order.Address{
			Name:       payload.Shipping.Name,
			Street:     payload.Shipping.Street,
			City:       payload.Shipping.City,
			PostalCode: payload.Shipping.PostalCode,
			Country:    payload.Shipping.Country,
		},
		PaymentMethod: payload.PaymentMethod,
		CouponCode:    payload.CouponCode,
	})
	if err != nil {
		log.Error().Err(err).Stringer("user_id", identity.UserID).Msg("Failed to place order via service")
		respondWithError(w, mapErrorToStatusCode(err), orderErrorMessage(err))
		return
	}

	respondWithJSON(w, http.StatusCreated, placed)
}

func (h *OrderHandler) HandleValidateCart(w http.ResponseWriter, r *http.Request) {
	var payload ValidateCartRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	if !validateStruct(w, h.validate, payload) {
		return
	}

	items, err := itemInputs(payload.Items)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid product id in items")
		return
	}

	quote, err := h.service.ValidateCart(r.Context(), items, payload.CouponCode)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), orderErrorMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, quote)
}

func (h *OrderHandler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrFail(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	o, err := h.service.GetOrder(r.Context(), identity.UserID, identity.IsAdmin(), orderID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), orderErrorMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) HandleListMyOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrFail(w, r)
	if !ok {
		return
	}

	offset, limit := paginationParams(r)
	orders, total, err := h.service.ListUserOrders(r.Context(), identity.UserID, offset, limit)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", identity.UserID).Msg("Failed to list orders via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, ListResponse{Items: orders, Total: total})
}

func (h *OrderHandler) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrFail(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var payload CancelOrderRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &payload) {
		return
	}

	cancelled, err := h.service.CancelOrder(r.Context(), identity.UserID, orderID, payload.Reason)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Msg("Failed to cancel order via service")
		respondWithError(w, mapErrorToStatusCode(err), orderErrorMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, cancelled)
}

func (h *OrderHandler) HandleAdminListOrders(w http.ResponseWriter, r *http.Request) {
	offset, limit := paginationParams(r)
	filters := order.Filters{
		Status: order.Status(r.URL.Query().Get("status")),
		Offset: offset,
		Limit:  limit,
	}
	if userParam := r.URL.Query().Get("user_id"); userParam != "" {
		userID, err := uuid.FromString(userParam)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid user_id parameter")
			return
		}
		filters.UserID = userID
	}

	orders, total, err := h.service.AdminListOrders(r.Context(), filters)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, ListResponse{Items: orders, Total: total})
}

func (h *OrderHandler) HandleAdminSetStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var payload SetStatusRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	if !validateStruct(w, h.validate, payload) {
		return
	}

	status := order.Status(payload.Status)
	if !status.Valid() {
		respondWithError(w, http.StatusBadRequest, "Unknown order status")
		return
	}

	updated, err := h.service.AdminSetStatus(r.Context(), orderID, status, payload.Message)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to set order status via service")
		respondWithError(w, mapErrorToStatusCode(err), orderErrorMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}
