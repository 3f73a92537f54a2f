package workflow

import "time"

// MetricsRecorder receives engine measurements. internal/metrics provides
// the Prometheus implementation.
type MetricsRecorder interface {
	RecordEvent(originType, status string)
	RecordNode(nodeType, status string, d time.Duration)
	RecordSchedulerTask(kind, status string)
	RecordLoad(status string)
	SetGraphNodes(n int)
	SetObservers(n int)
	RecordObserverDrop()
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordEvent(string, string)               {}
func (NopMetrics) RecordNode(string, string, time.Duration) {}
func (NopMetrics) RecordSchedulerTask(string, string)       {}
func (NopMetrics) RecordLoad(string)                        {}
func (NopMetrics) SetGraphNodes(int)                        {}
func (NopMetrics) SetObservers(int)                         {}
func (NopMetrics) RecordObserverDrop()                      {}
