package models

import "time"

// EngineStatus is the aggregate run state of the engine.
type EngineStatus struct {
	Running           bool       `json:"running"`
	LayersInitialized int        `json:"layers_initialized"`
	TotalLayers       int        `json:"total_layers"`
	LastCycleAt       *time.Time `json:"last_cycle_at,omitempty"`
	CyclesCompleted   int64      `json:"cycles_completed"`
	SignalsGenerated  int64      `json:"signals_generated"`
	OrdersExecuted    int64      `json:"orders_executed"`
}

// CycleResult carries every stage's output for one cycle. All slices are non-nil.
type CycleResult struct {
	MarketData       []MarketData      `json:"market_data"`
	Signals          []Signal          `json:"signals"`
	RiskAssessments  []RiskAssessment  `json:"risk_assessments"`
	ExecutionReports []ExecutionReport `json:"execution_reports"`
}

// NewCycleResult returns a bag with empty, non-nil sequences.
func NewCycleResult() *CycleResult {
	return &CycleResult{
		MarketData:       []MarketData{},
		Signals:          []Signal{},
		RiskAssessments:  []RiskAssessment{},
		ExecutionReports: []ExecutionReport{},
	}
}
