package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/afya-transport/internal/api/dto"
	"github.com/gocomet/afya-transport/internal/domain/geo"
	"github.com/gocomet/afya-transport/internal/domain/rider"
	"github.com/gocomet/afya-transport/internal/domain/transport"
	"github.com/gocomet/afya-transport/internal/domain/wallet"
	"github.com/gocomet/afya-transport/internal/repository/postgres"
	"github.com/gocomet/afya-transport/internal/service/credit"
	"github.com/gocomet/afya-transport/internal/service/dispatch"
	walletsvc "github.com/gocomet/afya-transport/internal/service/wallet"
	apperrors "github.com/gocomet/afya-transport/pkg/errors"
	"github.com/gocomet/afya-transport/pkg/logger"
	"github.com/gocomet/afya-transport/pkg/websocket"
	gorilla "github.com/gorilla/websocket"
)

// AuditReader reads the mirrored event trail of a request or user
type AuditReader interface {
	ListByKey(ctx context.Context, key string, types []string, limit int) ([]postgres.AuditRecord, error)
}

// Handlers holds all handler dependencies
type Handlers struct {
	Dispatch *dispatch.Engine
	Wallet   *walletsvc.Service
	Credit   *credit.Engine
	Hub      *websocket.Hub
	Logger   *logger.Logger

	// Audit is nil when the database mirror is disabled.
	Audit    AuditReader
	Upgrader gorilla.Upgrader

	stats map[string]func() map[string]interface{}
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine *dispatch.Engine, wallets *walletsvc.Service, scores *credit.Engine, hub *websocket.Hub, log *logger.Logger) *Handlers {
	return &Handlers{
		Dispatch: engine,
		Wallet:   wallets,
		Credit:   scores,
		Hub:      hub,
		Logger:   log.Named("api"),
		Upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		stats: make(map[string]func() map[string]interface{}),
	}
}

// ReportStats adds a named pool statistics source to the health endpoint
func (h *Handlers) ReportStats(name string, fn func() map[string]interface{}) {
	h.stats[name] = fn
}

// errorTable maps domain sentinels to API errors
var errorTable = []apperrors.Classifier{
	{Target: transport.ErrRequestNotFound, Build: apperrors.NotFoundError},
	{Target: rider.ErrRiderNotFound, Build: apperrors.NotFoundError},
	{Target: wallet.ErrAccountNotFound, Build: apperrors.NotFoundError},
	{Target: wallet.ErrTransactionNotFound, Build: apperrors.NotFoundError},
	{Target: wallet.ErrLoanNotFound, Build: apperrors.NotFoundError},

	{Target: transport.ErrInvalidState, Build: apperrors.InvalidStateError},
	{Target: transport.ErrNoRiderAvailable, Build: apperrors.InvalidStateError},
	{Target: rider.ErrRiderUnavailable, Build: apperrors.InvalidStateError},
	{Target: rider.ErrRiderBusy, Build: apperrors.InvalidStateError},
	{Target: wallet.ErrInvalidState, Build: apperrors.InvalidStateError},

	{Target: wallet.ErrInsufficientFunds, Build: apperrors.InsufficientFundsError},
	{Target: wallet.ErrPaymentFailed, Build: apperrors.PaymentFailureError},

	{Target: transport.ErrMissingEndpoint, Build: apperrors.BadRequest},
	{Target: transport.ErrInvalidRequest, Build: apperrors.BadRequest},
	{Target: transport.ErrInvalidCost, Build: apperrors.BadRequest},
	{Target: rider.ErrInvalidRider, Build: apperrors.BadRequest},
	{Target: rider.ErrInvalidRating, Build: apperrors.BadRequest},
	{Target: rider.ErrInvalidWindow, Build: apperrors.BadRequest},
	{Target: geo.ErrInvalidCoordinates, Build: apperrors.BadRequest},
	{Target: wallet.ErrInvalidAmount, Build: apperrors.BadRequest},
	{Target: wallet.ErrInvalidTransaction, Build: apperrors.BadRequest},
	{Target: wallet.ErrInvalidLoanTerms, Build: apperrors.BadRequest},
}

// respondError writes err as an ErrorResponse with the mapped status
func (h *Handlers) respondError(c *gin.Context, err error) {
	appErr := apperrors.Classify(err, errorTable)
	if appErr.Status >= http.StatusInternalServerError {
		h.Logger.Error("Request failed",
			logger.String("path", c.FullPath()),
			logger.Err(err),
		)
	}
	c.JSON(appErr.Status, dto.ErrorResponse{Code: appErr.Code, Message: appErr.Message})
}

// bindJSON decodes the body into dest, answering 400 on failure
func (h *Handlers) bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		h.respondError(c, apperrors.BadRequest("Invalid request payload", err))
		return false
	}
	return true
}

// bindOptionalJSON binds a body the client may leave out. An empty body,
// chunked or not, leaves dest untouched.
func (h *Handlers) bindOptionalJSON(c *gin.Context, dest interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(c, apperrors.BadRequest("Invalid request payload", err))
		return false
	}
	return true
}

// queryPoint reads lat/lng query parameters. Both missing yields nil.
func queryPoint(c *gin.Context) (*geo.Point, error) {
	lat, lng := c.Query("lat"), c.Query("lng")
	if lat == "" && lng == "" {
		return nil, nil
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, apperrors.BadRequest("lat must be a number", err)
	}
	lo, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return nil, apperrors.BadRequest("lng must be a number", err)
	}
	p := geo.Point{Latitude: la, Longitude: lo}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// queryRadius reads radius_km, zero when absent
func queryRadius(c *gin.Context) (float64, error) {
	raw := c.Query("radius_km")
	if raw == "" {
		return 0, nil
	}
	r, err := strconv.ParseFloat(raw, 64)
	if err != nil || r < 0 {
		return 0, apperrors.BadRequest("radius_km must be a non-negative number", err)
	}
	return r, nil
}
