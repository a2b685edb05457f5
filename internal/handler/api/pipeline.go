package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"QuantPipe/internal/alert"
	"QuantPipe/internal/domain/models"
	"QuantPipe/internal/service/ratelimit"
	"QuantPipe/internal/usecase"
	xhttp "QuantPipe/pkg/http"
	xlogger "QuantPipe/pkg/logger"
	"QuantPipe/pkg/util"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const maxWebhookBody = 1 << 20

// Pipeline is the engine surface the control API drives.
type Pipeline interface {
	Status() models.EngineStatus
	HealthCheck(ctx context.Context) map[string]bool
	ProcessCycle(ctx context.Context, raw any) (*models.CycleResult, error)
}

// Alerts is the alert processor surface behind /webhook and /api/strategies.
type Alerts interface {
	Process(ctx context.Context, a models.Alert) (models.AlertResult, error)
	Register(s models.Strategy) error
	Unregister(name string) error
	Strategies() []models.Strategy
	Processed() []models.Alert
	ClearProcessed()
}

type OrderBook interface {
	Order(id string) (models.Order, bool)
	Orders(symbol string) []models.Order
	OpenOrders(symbol string) []models.Order
}

type ExposureControl interface {
	PortfolioValue() decimal.Decimal
	Exposure() decimal.Decimal
	ExposurePct() float64
	SetExposure(v decimal.Decimal)
	Positions() map[string]decimal.Decimal
}

type SignalView interface {
	LatestSignal(symbol string) (models.Signal, bool)
}

// Deps groups what PipelineHandler reads from. Limiter may be nil.
type Deps struct {
	Pipeline Pipeline
	Alerts   Alerts
	Orders   OrderBook
	Risk     ExposureControl
	Signals  SignalView
	Verifier *alert.Verifier
	Limiter  *ratelimit.Limiter
	// SignatureHeader carries the hex HMAC of the webhook body.
	SignatureHeader string
}

// ExposureView is the body of GET /api/risk/exposure.
type ExposureView struct {
	PortfolioValue decimal.Decimal            `json:"portfolio_value"`
	Exposure       decimal.Decimal            `json:"exposure"`
	ExposurePct    float64                    `json:"exposure_pct"`
	Positions      map[string]decimal.Decimal `json:"positions"`
}

// HealthView is the body of GET /api/health.
type HealthView struct {
	Healthy bool            `json:"healthy"`
	Stages  map[string]bool `json:"stages"`
}

// PipelineHandler serves the webhook and the control API.
type PipelineHandler struct {
	logger *xlogger.Logger
	deps   Deps
	now    func() time.Time
}

func NewPipelineHandler(logger *xlogger.Logger, deps Deps) *PipelineHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if deps.Verifier == nil {
		deps.Verifier = alert.NewVerifier("")
	}
	if deps.SignatureHeader == "" {
		deps.SignatureHeader = "X-Signature"
	}
	return &PipelineHandler{logger: logger, deps: deps, now: time.Now}
}

func (h *PipelineHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhook", h.Webhook)

	g := e.Group("/api")
	g.POST("/cycle", h.Cycle)
	g.GET("/status", h.Status)
	g.GET("/health", h.Health)
	g.GET("/orders", h.Orders)
	g.GET("/orders/:id", h.Order)
	g.GET("/risk/exposure", h.GetExposure)
	g.PUT("/risk/exposure", h.PutExposure)
	g.GET("/strategies", h.ListStrategies)
	g.POST("/strategies", h.RegisterStrategy)
	g.DELETE("/strategies/:name", h.DeleteStrategy)
	g.GET("/alerts", h.Alerts)
	g.DELETE("/alerts", h.ClearAlerts)
	g.GET("/signals/:symbol", h.Signal)
}

func (h *PipelineHandler) Webhook(c echo.Context) error {
	if h.deps.Limiter != nil && !h.deps.Limiter.Allow(c.RealIP()) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("unreadable body").WithError(err))
	}
	if len(body) > maxWebhookBody {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_TOO_LARGE", "", "payload too large", http.StatusRequestEntityTooLarge))
	}

	if err := h.deps.Verifier.Verify(body, c.Request().Header.Get(h.deps.SignatureHeader)); err != nil {
		h.logger.Warn("webhook rejected", xlogger.String("remote", c.RealIP()), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("invalid signature"))
	}

	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || payload == nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("body must be a JSON object"))
	}
	a, err := alert.ParsePayload(payload, h.now())
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_BAD_REQUEST", "price", err.Error(), http.StatusBadRequest))
	}

	res, err := h.deps.Alerts.Process(c.Request().Context(), a)
	switch {
	case errors.Is(err, usecase.ErrEngineNotRunning), errors.Is(err, usecase.ErrDedupUnavailable):
		h.logger.Warn("webhook alert deferred", xlogger.String("alert_id", a.ID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError(err.Error()))
	case err != nil:
		h.logger.Error("webhook alert failed", xlogger.String("alert_id", a.ID), xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	h.logger.Info("webhook alert handled",
		xlogger.String("alert_id", a.ID),
		xlogger.String("symbol", a.Symbol),
		xlogger.String("type", string(a.Type)),
		xlogger.Bool("executed", res.Executed),
		xlogger.Bool("duplicate", res.Duplicate),
		xlogger.Any("metadata", a.Metadata))
	return xhttp.SuccessResponse(c, res)
}

func (h *PipelineHandler) Cycle(c echo.Context) error {
	req := &models.CycleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	candles, err := toCandles(req.Candles, h.now())
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	res, err := h.deps.Pipeline.ProcessCycle(c.Request().Context(), candles)
	if errors.Is(err, usecase.ErrEngineNotRunning) {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError(err.Error()))
	}
	if err != nil {
		h.logger.Error("cycle usecase error", xlogger.Error(err))
		var se *usecase.StageError
		if errors.As(err, &se) {
			return xhttp.AppErrorResponse(c, xhttp.InternalError(err.Error()).WithParam("stage", se.Stage))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func toCandles(reqs []models.CandleRequest, now time.Time) ([]models.Candle, error) {
	out := make([]models.Candle, 0, len(reqs))
	for i, r := range reqs {
		ts := now.UTC()
		if r.Timestamp != "" {
			t, ok := util.ParseTime(r.Timestamp)
			if !ok {
				return nil, xhttp.NewAppError("ERR_BAD_REQUEST", "candles.timestamp", "timestamp must be RFC3339 or unix time", http.StatusBadRequest).
					WithParam("index", i)
			}
			ts = t
		}
		// numeric tags already guarantee these parse
		out = append(out, models.Candle{
			Timestamp: ts,
			Open:      decimal.RequireFromString(r.Open),
			High:      decimal.RequireFromString(r.High),
			Low:       decimal.RequireFromString(r.Low),
			Close:     decimal.RequireFromString(r.Close),
			Volume:    decimal.RequireFromString(r.Volume),
			Symbol:    r.Symbol,
			Timeframe: models.Timeframe(r.Timeframe),
		})
	}
	return out, nil
}

func (h *PipelineHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.deps.Pipeline.Status())
}

func (h *PipelineHandler) Health(c echo.Context) error {
	stages := h.deps.Pipeline.HealthCheck(c.Request().Context())
	view := HealthView{Healthy: true, Stages: stages}
	for _, ok := range stages {
		if !ok {
			view.Healthy = false
		}
	}
	if !view.Healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, view)
	}
	return xhttp.SuccessResponse(c, view)
}

func (h *PipelineHandler) Orders(c echo.Context) error {
	req := &models.OrdersRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	orders := h.deps.Orders.Orders(req.Symbol)
	if req.Open {
		orders = h.deps.Orders.OpenOrders(req.Symbol)
	}
	return xhttp.ListResponse(c, orders, int64(len(orders)))
}

func (h *PipelineHandler) Order(c echo.Context) error {
	id := c.Param("id")
	o, ok := h.deps.Orders.Order(id)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("order %s not found", id))
	}
	return xhttp.SuccessResponse(c, o)
}

func (h *PipelineHandler) GetExposure(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.exposure())
}

func (h *PipelineHandler) PutExposure(c echo.Context) error {
	req := &models.ExposureRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v := decimal.RequireFromString(req.Exposure)
	if v.IsNegative() {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_GTE", "exposure", "exposure must be greater than or equal to 0", http.StatusBadRequest))
	}
	h.deps.Risk.SetExposure(v)
	h.logger.Info("exposure overridden", xlogger.Decimal("exposure", v))
	return xhttp.SuccessResponse(c, h.exposure())
}

func (h *PipelineHandler) exposure() ExposureView {
	return ExposureView{
		PortfolioValue: h.deps.Risk.PortfolioValue(),
		Exposure:       h.deps.Risk.Exposure(),
		ExposurePct:    h.deps.Risk.ExposurePct(),
		Positions:      h.deps.Risk.Positions(),
	}
}

func (h *PipelineHandler) ListStrategies(c echo.Context) error {
	list := h.deps.Alerts.Strategies()
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *PipelineHandler) RegisterStrategy(c echo.Context) error {
	req := &models.StrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s := req.ToStrategy()
	if err := h.deps.Alerts.Register(s); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.DataResponse(c, http.StatusCreated, s)
}

func (h *PipelineHandler) DeleteStrategy(c echo.Context) error {
	name := c.Param("name")
	if err := h.deps.Alerts.Unregister(name); err != nil {
		if errors.Is(err, usecase.ErrStrategyNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("strategy %s not found", name))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PipelineHandler) Alerts(c echo.Context) error {
	list := h.deps.Alerts.Processed()
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *PipelineHandler) ClearAlerts(c echo.Context) error {
	h.deps.Alerts.ClearProcessed()
	return c.NoContent(http.StatusNoContent)
}

func (h *PipelineHandler) Signal(c echo.Context) error {
	symbol := c.Param("symbol")
	s, ok := h.deps.Signals.LatestSignal(symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no signal for %s", symbol))
	}
	return xhttp.SuccessResponse(c, s)
}
