package stages

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"QuantPipe/internal/domain/models"
	domsvc "QuantPipe/internal/domain/service"
	"QuantPipe/pkg/config"
	"QuantPipe/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const ExecutionStageName = "execution_layer"

// ExecutionStage turns approved assessments into orders and fills them on a venue.
type ExecutionStage struct {
	lifecycle
	cfg       config.ExecutionStageConfig
	orderType models.OrderType
	venue     domsvc.Venue
	log       *logger.Logger
	now       func() time.Time
	newID     func() string

	mu     sync.RWMutex
	orders map[string]*models.Order
	seq    []string
}

// NewExecutionStage uses venue when given; otherwise it builds the simulated
// venue, and refuses to build at all when live execution is requested.
func NewExecutionStage(cfg config.ExecutionStageConfig, venue domsvc.Venue, log *logger.Logger) (*ExecutionStage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RequireVenue(venue != nil); err != nil {
		return nil, err
	}
	orderType, err := models.ParseOrderType(cfg.DefaultOrderType)
	if err != nil {
		return nil, err
	}
	if venue == nil {
		venue = NewSimulatedVenue(cfg.SlippagePct, cfg.FeeRate, cfg.SimulatedLatency)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ExecutionStage{
		lifecycle: lifecycle{name: ExecutionStageName, enabled: cfg.Enabled},
		cfg:       cfg,
		orderType: orderType,
		venue:     venue,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
		orders:    make(map[string]*models.Order),
	}, nil
}

func (s *ExecutionStage) Initialize(ctx context.Context) error {
	return s.start()
}

// Process executes approved assessments; rejected ones are skipped.
func (s *ExecutionStage) Process(ctx context.Context, assessments []models.RiskAssessment) ([]models.ExecutionReport, error) {
	if err := s.mustBeReady(); err != nil {
		return nil, err
	}

	reports := make([]models.ExecutionReport, 0, len(assessments))
	for _, a := range assessments {
		if !a.Approved || a.PositionSize == nil {
			continue
		}
		order, ok := s.buildOrder(a)
		if !ok {
			continue
		}
		reports = append(reports, s.execute(ctx, order, a.Signal.Price))
	}
	return reports, nil
}

func (s *ExecutionStage) buildOrder(a models.RiskAssessment) (models.Order, bool) {
	var side models.OrderSide
	switch a.Signal.Direction {
	case models.DirectionBuy:
		side = models.SideBuy
	case models.DirectionSell:
		side = models.SideSell
	default:
		return models.Order{}, false
	}

	ps := a.PositionSize
	ref := a.Signal.Price
	stopLoss, takeProfit := ps.StopLossPrice, ps.TakeProfitPrice
	created := s.now()
	order := models.Order{
		ID:             s.newID(),
		Symbol:         a.Signal.Symbol,
		Side:           side,
		Type:           s.orderType,
		Quantity:       ps.Units,
		StopLoss:       &stopLoss,
		TakeProfit:     &takeProfit,
		Status:         models.StatusPending,
		FilledQuantity: decimal.Zero,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	switch s.orderType {
	case models.OrderTypeLimit:
		order.Price = &ref
	case models.OrderTypeStopMarket:
		order.StopPrice = &ref
	case models.OrderTypeStopLimit:
		limit := ref
		order.Price, order.StopPrice = &limit, &ref
	}
	return order, true
}

func (s *ExecutionStage) execute(ctx context.Context, order models.Order, reference decimal.Decimal) models.ExecutionReport {
	start := time.Now()
	fillCtx, cancel := context.WithTimeout(ctx, s.cfg.FillTimeout)
	fill, err := s.venue.Execute(fillCtx, order, reference)
	cancel()
	latency := float64(time.Since(start).Microseconds()) / 1000

	report := models.ExecutionReport{LatencyMs: latency, Fees: decimal.Zero}
	at := s.now()
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domsvc.ErrFillTimeout):
		_ = order.Transition(models.StatusCancelled, at)
		report.FailureKind = models.FailureTimeout
		report.Message = fmt.Sprintf("%v after %s on %s", domsvc.ErrFillTimeout, s.cfg.FillTimeout, s.venue.Name())
	case err != nil:
		_ = order.Transition(models.StatusRejected, at)
		report.FailureKind = models.FailureRejected
		report.Message = fmt.Sprintf("order rejected: %v", err)
	default:
		if ferr := order.Fill(fill.Price, at); ferr != nil {
			report.FailureKind = models.FailureRejected
			report.Message = ferr.Error()
			break
		}
		report.Success = true
		report.Fees = fill.Fees
		report.Message = fmt.Sprintf("filled %s %s @ %s", order.Quantity, order.Symbol, fill.Price)
	}
	report.Order = order

	if !report.Success {
		s.log.Warn("order not filled",
			logger.String("order_id", order.ID),
			logger.String("symbol", order.Symbol),
			logger.String("failure", string(report.FailureKind)),
			logger.String("reason", report.Message),
		)
	}

	s.store(order)
	return report
}

func (s *ExecutionStage) store(o models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; !exists {
		s.seq = append(s.seq, o.ID)
	}
	s.orders[o.ID] = &o
}

// Order looks up an order by id.
func (s *ExecutionStage) Order(id string) (models.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, false
	}
	return *o, true
}

// Orders lists orders in creation order; empty symbol means all.
func (s *ExecutionStage) Orders(symbol string) []models.Order {
	return s.filter(func(o *models.Order) bool { return symbol == "" || o.Symbol == symbol })
}

// OpenOrders lists orders whose status can still change.
func (s *ExecutionStage) OpenOrders(symbol string) []models.Order {
	return s.filter(func(o *models.Order) bool {
		return o.Status.IsOpen() && (symbol == "" || o.Symbol == symbol)
	})
}

func (s *ExecutionStage) filter(keep func(*models.Order) bool) []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, 0)
	for _, id := range s.seq {
		if o := s.orders[id]; keep(o) {
			out = append(out, *o)
		}
	}
	return out
}

// Shutdown drops the order table.
func (s *ExecutionStage) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.orders = make(map[string]*models.Order)
	s.seq = nil
	s.mu.Unlock()
	s.stop()
	return nil
}

var _ domsvc.Stage[[]models.RiskAssessment, []models.ExecutionReport] = (*ExecutionStage)(nil)
