package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lendaudit/internal/lending/models"
	"lendaudit/pkg/platform/audit"
	"lendaudit/pkg/platform/httputil"
	auditmw "lendaudit/pkg/platform/middleware/audit"
)

// Service defines the lending operations exposed over HTTP.
type Service interface {
	GetBuyer(ctx context.Context, id string) (models.Buyer, error)
	UpdateBuyer(ctx context.Context, id string, req models.UpdateBuyerRequest) (models.Buyer, error)
	ScreenBuyer(ctx context.Context, id string) (models.ScreeningResult, error)
	GetVehicle(ctx context.Context, id string) (models.Vehicle, error)
	CreateDeal(ctx context.Context, req models.CreateDealRequest) (models.Deal, error)
	ExportDeals(ctx context.Context, buyerID string) ([]models.Deal, error)
}

// Handler serves the buyer, deal and vehicle endpoints.
type Handler struct {
	lending Service
	logger  *slog.Logger
}

func New(lending Service, logger *slog.Logger) *Handler {
	return &Handler{
		lending: lending,
		logger:  logger,
	}
}

type route struct {
	method  string
	pattern string
	meta    *audit.Metadata
	handle  httputil.HandlerFunc
}

// Register mounts the lending routes on r, declaring audit metadata for the
// sensitive ones. Vehicle lookups are not audited.
func (h *Handler) Register(r chi.Router, mw *auditmw.Middleware) error {
	routes := []route{
		{http.MethodGet, "/buyers/{id}", &audit.Metadata{
			Action: audit.ActionRead, Resource: "buyer", PII: true,
			Compliance: []string{audit.ComplianceGLBA},
		}, h.handleGetBuyer},
		{http.MethodPut, "/buyers/{id}", &audit.Metadata{
			Action: audit.ActionUpdate, Resource: "buyer", Level: audit.LevelCritical, PII: true,
			Compliance: []string{audit.ComplianceGLBA},
		}, h.handleUpdateBuyer},
		{http.MethodPost, "/buyers/{id}/screen", &audit.Metadata{
			Action: audit.ActionScreen, Resource: "buyer", Level: audit.LevelCritical, PII: true,
			Compliance: []string{audit.ComplianceOFAC},
		}, h.handleScreenBuyer},
		{http.MethodPost, "/deals", &audit.Metadata{
			Action: audit.ActionCreate, Resource: "deal", Level: audit.LevelCritical, PII: true,
			Compliance: []string{audit.ComplianceGLBA, audit.ComplianceOFAC},
		}, h.handleCreateDeal},
		{http.MethodGet, "/deals/export", &audit.Metadata{
			Action: audit.ActionExport, Resource: "deal", Level: audit.LevelCritical, PII: true,
			Compliance: []string{audit.ComplianceGLBA, audit.ComplianceFCRA},
		}, h.handleExportDeals},
		{http.MethodGet, "/vehicles/{vehicleId}", nil, h.handleGetVehicle},
	}
	for _, rt := range routes {
		if err := mw.Handle(r, rt.method, rt.pattern, rt.meta, rt.handle); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) handleGetBuyer(w http.ResponseWriter, r *http.Request) error {
	buyer, err := h.lending.GetBuyer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	httputil.WriteJSON(w, http.StatusOK, buyer)
	return nil
}

func (h *Handler) handleUpdateBuyer(w http.ResponseWriter, r *http.Request) error {
	req, err := httputil.DecodeJSON[models.UpdateBuyerRequest](r)
	if err != nil {
		return err
	}
	buyer, err := h.lending.UpdateBuyer(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		return err
	}
	httputil.WriteJSON(w, http.StatusOK, buyer)
	return nil
}

func (h *Handler) handleScreenBuyer(w http.ResponseWriter, r *http.Request) error {
	res, err := h.lending.ScreenBuyer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	if !res.Clear {
		h.logger.WarnContext(r.Context(), "buyer matched sanctions watchlist", "buyer_id", res.BuyerID)
	}
	httputil.WriteJSON(w, http.StatusOK, res)
	return nil
}

func (h *Handler) handleCreateDeal(w http.ResponseWriter, r *http.Request) error {
	req, err := httputil.DecodeJSON[models.CreateDealRequest](r)
	if err != nil {
		return err
	}
	deal, err := h.lending.CreateDeal(r.Context(), req)
	if err != nil {
		return err
	}
	httputil.WriteJSON(w, http.StatusCreated, deal)
	return nil
}

func (h *Handler) handleExportDeals(w http.ResponseWriter, r *http.Request) error {
	deals, err := h.lending.ExportDeals(r.Context(), r.URL.Query().Get("buyerId"))
	if err != nil {
		return err
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"deals": deals})
	return nil
}

func (h *Handler) handleGetVehicle(w http.ResponseWriter, r *http.Request) error {
	vehicle, err := h.lending.GetVehicle(r.Context(), chi.URLParam(r, "vehicleId"))
	if err != nil {
		return err
	}
	httputil.WriteJSON(w, http.StatusOK, vehicle)
	return nil
}
