package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
)

// ShopService is the shop management API used by the handlers
type ShopService interface {
	Create(ctx context.Context, shop *model.Shop) error
	GetByID(ctx context.Context, id string) (*model.Shop, error)
	List(ctx context.Context, ownerUserID string, level model.Level, tags []string, page, limit int) ([]model.ShopListItem, int64, error)
	Delete(ctx context.Context, id string) error
	GetStatus(ctx context.Context, id string) (*model.Status, error)
	LatestSnapshot(ctx context.Context, id string) (*model.Snapshot, error)
}

// ShopHandler handles shop CRUD and shop state endpoints
type ShopHandler struct {
	service ShopService
}

// NewShopHandler creates a new shop handler
func NewShopHandler(service ShopService) *ShopHandler {
	return &ShopHandler{service: service}
}

// CreateShopRequest is the body of POST /api/v1/shops
type CreateShopRequest struct {
	Name         string   `json:"name"`
	URL          string   `json:"url"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	OwnerUserID  string   `json:"owner_user_id"`
	Tags         []string `json:"tags,omitempty"`
}

// CreateShopResponse is returned after a shop was registered
type CreateShopResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
	Message   string `json:"message"`
}

// Create handles POST /api/v1/shops
func (h *ShopHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateShopRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	shop := &model.Shop{
		Name: req.Name,
		URL:  req.URL,
		Credentials: model.Credentials{
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
		},
		OwnerUserID: req.OwnerUserID,
		Metadata:    model.Metadata{Tags: req.Tags},
	}
	if err := h.service.Create(r.Context(), shop); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateShopResponse{
		ID:        shop.ID.Hex(),
		Name:      shop.Name,
		URL:       shop.URL,
		CreatedAt: shop.Metadata.CreatedAt.Format(time.RFC3339),
		Message:   "Shop registered successfully",
	})
}

// Get handles GET /api/v1/shops/{id}
func (h *ShopHandler) Get(w http.ResponseWriter, r *http.Request) {
	shop, err := h.service.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shop.ToListItem())
}

// List handles GET /api/v1/shops
func (h *ShopHandler) List(w http.ResponseWriter, r *http.Request) {
	var level model.Level
	if raw := r.URL.Query().Get("level"); raw != "" {
		parsed, err := model.ParseLevel(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		level = parsed
	}
	page, limit := pagination(r)

	items, total, err := h.service.List(r.Context(), r.URL.Query().Get("owner_user_id"), level, parseQueryList(r, "tags"), page, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []model.ShopListItem{}
	}

	writeJSON(w, http.StatusOK, ListResponse[model.ShopListItem]{
		Total:   total,
		Page:    page,
		Limit:   limit,
		Results: items,
	})
}

// Delete handles DELETE /api/v1/shops/{id}
func (h *ShopHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/v1/shops/{id}/status
func (h *ShopHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Snapshot handles GET /api/v1/shops/{id}/snapshot
func (h *ShopHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.LatestSnapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
