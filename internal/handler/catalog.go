package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/attar-shop/internal/catalog"
)

type SizeRequest struct {
	VolumeLabel string          `json:"volume_label" validate:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"required"`
	Stock       int             `json:"stock" validate:"min=0"`
	StockUnit   string          `json:"stock_unit"`
}

type ProductRequest struct {
	Name        string        `json:"name" validate:"required,min=2"`
	Description string        `json:"description"`
	Category    string        `json:"category" validate:"required"`
	ImageURL    string        `json:"image_url"`
	Active      *bool         `json:"active"`
	Sizes       []SizeRequest `json:"sizes" validate:"required,min=1,dive"`
}

type CatalogHandler struct {
	service  catalog.Service
	validate *validator.Validate
}

func NewCatalogHandler(service catalog.Service) *CatalogHandler {
	return &CatalogHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *CatalogHandler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	offset, limit := paginationParams(r)
	filters := catalog.Filters{
		Category:   r.URL.Query().Get("category"),
		Search:     r.URL.Query().Get("search"),
		ActiveOnly: true,
		Offset:     offset,
		Limit:      limit,
	}

	products, total, err := h.service.ListProducts(r.Context(), filters)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list products via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list products")
		return
	}

	respondWithJSON(w, http.StatusOK, ListResponse{Items: products, Total: total})
}

func (h *CatalogHandler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	productID, err := uuid.FromString(idParam)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	product, err := h.service.GetActiveProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, "Product not found")
			return
		}
		log.Error().Err(err).Msg("Failed to get product via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get product")
		return
	}

	respondWithJSON(w, http.StatusOK, product)
}

func (h *CatalogHandler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var payload ProductRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	if !validateStruct(w, h.validate, payload) {
		return
	}

	product := payload.toDomain()
	created, err := h.service.CreateProduct(r.Context(), product)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create product via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to create product")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *CatalogHandler) HandleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	productID, err := uuid.FromString(idParam)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var payload ProductRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	if !validateStruct(w, h.validate, payload) {
		return
	}

	product := payload.toDomain()
	product.ID = productID

	updated, err := h.service.UpdateProduct(r.Context(), product)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, "Product not found")
			return
		}
		log.Error().Err(err).Msg("Failed to update product via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to update product")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *CatalogHandler) HandleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	productID, err := uuid.FromString(idParam)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	if err := h.service.DeactivateProduct(r.Context(), productID); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, "Product not found")
			return
		}
		log.Error().Err(err).Msg("Failed to deactivate product via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to deactivate product")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (p ProductRequest) toDomain() *catalog.Product {
	active := true
	if p.Active != nil {
		active = *p.Active
	}

	sizes := make([]catalog.Size, 0, len(p.Sizes))
	for _, s := range p.Sizes {
		unit := s.StockUnit
		if unit == "" {
			unit = "bottle"
		}
		sizes = append(sizes, catalog.Size{
			VolumeLabel: s.VolumeLabel,
			UnitPrice:   s.UnitPrice,
			Stock:       s.Stock,
			StockUnit:   unit,
		})
	}

	return &catalog.Product{
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		Active:      active,
		Sizes:       sizes,
	}
}
