// Package perfmonitor provides a small stopwatch used to measure how long an
// audio link takes to come up, from the origination or accept decision to the
// controller confirming the link.
package perfmonitor

import "time"

// PerformanceMonitor measures the wall time between Start and Stop. It is not
// safe for concurrent use; the SCO link controller only touches it from its
// serialized event loop.
type PerformanceMonitor struct {
	startTime time.Time
	endTime   time.Time
}

// NewPerformanceMonitor returns a stopped monitor with no measurement.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{}
}

// Start begins a new measurement, discarding any previous end time.
func (p *PerformanceMonitor) Start() {
	p.startTime = time.Now()
	p.endTime = time.Time{}
}

// Stop records the end of the current measurement. It does nothing if Start
// has not been called since the last Reset. Calling Stop again moves the end
// time forward.
func (p *PerformanceMonitor) Stop() {
	if p.startTime.IsZero() {
		return
	}

	p.endTime = time.Now()
}

// Reset clears the measurement.
func (p *PerformanceMonitor) Reset() {
	p.startTime = time.Time{}
	p.endTime = time.Time{}
}

// Running reports whether a measurement has been started but not stopped.
func (p *PerformanceMonitor) Running() bool {
	return !p.startTime.IsZero() && p.endTime.IsZero()
}

// Elapsed returns the measured duration, or zero when no complete
// measurement exists.
//
// Returns:
//   - The duration between Start and the latest Stop
func (p *PerformanceMonitor) Elapsed() time.Duration {
	if p.startTime.IsZero() || p.endTime.IsZero() {
		return 0
	}

	return p.endTime.Sub(p.startTime)
}

// ElapsedMilliseconds returns Elapsed as fractional milliseconds.
//
// Returns:
//   - The measured time in milliseconds, or 0 when no complete measurement exists
func (p *PerformanceMonitor) ElapsedMilliseconds() float64 {
	return float64(p.Elapsed()) / float64(time.Millisecond)
}
