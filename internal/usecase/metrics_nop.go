package usecase

import drepo "QuantPipe/internal/domain/repository"

type nopMetrics struct{}

func (nopMetrics) RecordCycle(float64)                 {}
func (nopMetrics) RecordStageLatency(string, float64)  {}
func (nopMetrics) RecordSignal(string)                 {}
func (nopMetrics) RecordAssessment(string)             {}
func (nopMetrics) RecordOrder(string)                  {}
func (nopMetrics) RecordError(string)                  {}
func (nopMetrics) RecordExposure(float64)              {}
func (nopMetrics) RecordLastPrice(string, float64)     {}
func (nopMetrics) RecordMessageSent(string, string)    {}
func (nopMetrics) RecordLatency(string, float64)       {}
func (nopMetrics) RecordBufferDrain(int)               {}

func orNop(m drepo.Metrics) drepo.Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
