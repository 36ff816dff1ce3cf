package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"sales-engine/internal/cache"
	"sales-engine/internal/domain"
	"sales-engine/internal/sale"
	"sales-engine/internal/store"
	pkgerrors "sales-engine/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConnectivityProbe reports whether the device currently has a usable
// uplink. The UI owns the real signal; tests and headless runs use a
// static probe.
type ConnectivityProbe interface {
	Online() bool
}

// StaticProbe is a fixed-answer connectivity probe.
type StaticProbe bool

func (p StaticProbe) Online() bool { return bool(p) }

// WarehouseResolver narrows the mirror service to what the handlers need.
type WarehouseResolver interface {
	ResolveAssignedWarehouse(ctx context.Context, sellerID string) (*domain.WarehouseRef, error)
}

// Handler exposes the engine to the device UI over HTTP. It is a thin
// adapter: all sale semantics live in the coordinator.
type Handler struct {
	coordinator *sale.Coordinator
	store       *store.Store
	cache       cache.Cache
	resolver    WarehouseResolver
	probe       ConnectivityProbe
	session     sale.Session
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(coordinator *sale.Coordinator, st *store.Store, ca cache.Cache, resolver WarehouseResolver, probe ConnectivityProbe, session sale.Session, cacheTTL time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		store:       st,
		cache:       ca,
		resolver:    resolver,
		probe:       probe,
		session:     session,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// currentSession stamps the live connectivity answer onto the base session.
func (h *Handler) currentSession() sale.Session {
	s := h.session
	if h.probe != nil {
		s.Online = h.probe.Online()
	}
	return s
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var stdErr *pkgerrors.StandardError
	if errors.As(err, &stdErr) {
		c.JSON(stdErr.HTTPStatus(), stdErr)
		return
	}
	c.JSON(http.StatusInternalServerError, pkgerrors.NewInternalError("unexpected error", err))
}

// buildCart snapshots name and price from the cached products for each
// requested line.
func (h *Handler) buildCart(ctx context.Context, lines []CartLineRequest) (domain.Cart, error) {
	cart := make(domain.Cart, 0, len(lines))
	for _, line := range lines {
		product, err := h.store.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrProductNotFound) {
				return nil, pkgerrors.NewProductNotFound(line.ProductID)
			}
			return nil, pkgerrors.NewDatabaseError("get product", err)
		}
		cart = append(cart, domain.CartLine{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.UnitPrice,
			Quantity:  line.Quantity,
			ImageRef:  product.ImageRef,
		})
	}
	return cart, nil
}

// ListProducts returns the mirrored stock of the session warehouse,
// served through the read cache.
func (h *Handler) ListProducts(c *gin.Context) {
	session := h.currentSession()

	warehouse, err := h.resolver.ResolveAssignedWarehouse(c.Request.Context(), session.SellerID)
	if err != nil {
		h.respondError(c, pkgerrors.NewDatabaseError("resolve warehouse", err))
		return
	}
	if warehouse == nil {
		h.respondError(c, pkgerrors.NewNoWarehouse(session.SellerID))
		return
	}

	key := cache.ProductListKey(warehouse.ID)
	if h.cache != nil {
		if cached, err := h.cache.Get(c.Request.Context(), key); err == nil {
			c.Data(http.StatusOK, "application/json", cached)
			return
		}
	}

	products, err := h.store.ListProducts(c.Request.Context(), warehouse.ID)
	if err != nil {
		h.respondError(c, pkgerrors.NewDatabaseError("list products", err))
		return
	}

	resp := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}

	if h.cache != nil {
		if body, err := json.Marshal(resp); err == nil {
			if err := h.cache.Set(c.Request.Context(), key, body, h.cacheTTL); err != nil {
				h.logger.Warn("Failed to cache product list", zap.Error(err))
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ValidateCart runs the advisory pre-commit check.
func (h *Handler) ValidateCart(c *gin.Context) {
	var req ValidateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, pkgerrors.NewInvalidRequest("invalid request body", err.Error()))
		return
	}

	cart, err := h.buildCart(c.Request.Context(), req.Lines)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.coordinator.ValidateCart(c.Request.Context(), h.currentSession(), cart); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true, "total": cart.Total()})
}

// CommitSale commits a sale; the response returns as soon as the local
// transaction is durable, while sync and notification continue in the
// background.
func (h *Handler) CommitSale(c *gin.Context) {
	var req CommitSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, pkgerrors.NewInvalidRequest("invalid request body", err.Error()))
		return
	}

	cart, err := h.buildCart(c.Request.Context(), req.Lines)
	if err != nil {
		h.respondError(c, err)
		return
	}

	localID, _, err := h.coordinator.CommitSale(c.Request.Context(), h.currentSession(), sale.CommitInput{
		ClientID:       req.ClientID,
		ClientName:     req.ClientName,
		ClientImageRef: req.ClientImageRef,
		Cart:           cart,
		PaymentMethod:  req.PaymentMethod,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CommitSaleResponse{
		LocalID:   localID,
		SyncState: string(domain.SyncPending),
		Total:     cart.Total(),
	})
}

// GetSale returns one sale with its line items.
func (h *Handler) GetSale(c *gin.Context) {
	localID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.respondError(c, pkgerrors.NewInvalidRequest("invalid sale id", c.Param("id")))
		return
	}

	s, err := h.store.GetSale(c.Request.Context(), localID)
	if err != nil {
		if errors.Is(err, store.ErrSaleNotFound) {
			h.respondError(c, pkgerrors.NewSaleNotFound(localID))
			return
		}
		h.respondError(c, pkgerrors.NewDatabaseError("get sale", err))
		return
	}

	items, err := h.store.GetSaleItems(c.Request.Context(), localID)
	if err != nil {
		h.respondError(c, pkgerrors.NewDatabaseError("get sale items", err))
		return
	}

	c.JSON(http.StatusOK, toSaleResponse(s, items))
}

// ListPendingSales returns the sales still awaiting remote sync.
func (h *Handler) ListPendingSales(c *gin.Context) {
	pending, err := h.store.ListPendingSales(c.Request.Context())
	if err != nil {
		h.respondError(c, pkgerrors.NewDatabaseError("list pending sales", err))
		return
	}

	resp := make([]SaleResponse, 0, len(pending))
	for i := range pending {
		resp = append(resp, toSaleResponse(&pending[i], nil))
	}
	c.JSON(http.StatusOK, resp)
}

// SyncPending runs the explicit pending-sales sweep.
func (h *Handler) SyncPending(c *gin.Context) {
	report, err := h.coordinator.SyncPending(c.Request.Context(), h.currentSession())
	if err != nil {
		h.respondError(c, pkgerrors.NewDatabaseError("sync pending sales", err))
		return
	}

	c.JSON(http.StatusOK, SyncReportResponse{
		Attempted: report.Attempted,
		Synced:    report.Synced,
		Deferred:  report.Deferred,
		Failed:    report.Failed,
	})
}

// StreamEvents pushes store change notifications to the device UI as
// server-sent events so it can refresh queries without polling.
func (h *Handler) StreamEvents(c *gin.Context) {
	events, cancel := h.store.Watch()
	defer cancel()

	c.Writer.Header().Set("Cache-Control", "no-cache")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("change", gin.H{"table": ev.Table, "key": ev.Key, "op": ev.Op})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// Health reports liveness of the local store.
func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
