// internal/link/profiling.go
package link

import (
	"sync/atomic"
	"time"

	"accel-link-service/pkg/xlink"
)

// Profiler aggregates process-wide transfer and boot counters. The
// transport layer feeds it through the xlink.ProfilingRecorder side
// channel; this component only owns start/stop/report semantics.
// All counters are atomics so recording never contends with reporting.
type Profiler struct {
	enabled atomic.Bool

	readBytes  atomic.Uint64
	writeBytes atomic.Uint64
	readNanos  atomic.Int64
	writeNanos atomic.Int64
	bootCount  atomic.Uint64
	bootNanos  atomic.Int64
}

// NewProfiler creates a profiler with counting disabled
func NewProfiler() *Profiler {
	return &Profiler{}
}

// Start zeroes all counters and enables counting
func (p *Profiler) Start() {
	p.readBytes.Store(0)
	p.writeBytes.Store(0)
	p.readNanos.Store(0)
	p.writeNanos.Store(0)
	p.bootCount.Store(0)
	p.bootNanos.Store(0)
	p.enabled.Store(true)
}

// Stop disables counting. Counters retain their last values for reporting.
func (p *Profiler) Stop() {
	p.enabled.Store(false)
}

// Enabled reports whether counting is active
func (p *Profiler) Enabled() bool {
	return p.enabled.Load()
}

// RecordRead adds a completed read transfer
func (p *Profiler) RecordRead(bytes int64, elapsed time.Duration) {
	if !p.enabled.Load() || bytes < 0 {
		return
	}
	p.readBytes.Add(uint64(bytes))
	p.readNanos.Add(int64(elapsed))
}

// RecordWrite adds a completed write transfer
func (p *Profiler) RecordWrite(bytes int64, elapsed time.Duration) {
	if !p.enabled.Load() || bytes < 0 {
		return
	}
	p.writeBytes.Add(uint64(bytes))
	p.writeNanos.Add(int64(elapsed))
}

// RecordBoot adds a completed device boot
func (p *Profiler) RecordBoot(elapsed time.Duration) {
	if !p.enabled.Load() {
		return
	}
	p.bootCount.Add(1)
	p.bootNanos.Add(int64(elapsed))
}

// Report computes the summary. Throughput rates are derived only when the
// corresponding time accumulator is non-zero; otherwise the rate entry is
// omitted rather than reporting infinity.
func (p *Profiler) Report() xlink.ProfilingSummary {
	readTime := time.Duration(p.readNanos.Load()).Seconds()
	writeTime := time.Duration(p.writeNanos.Load()).Seconds()
	bootTime := time.Duration(p.bootNanos.Load()).Seconds()

	summary := xlink.ProfilingSummary{
		Enabled:         p.enabled.Load(),
		TotalReadBytes:  p.readBytes.Load(),
		TotalWriteBytes: p.writeBytes.Load(),
		TotalReadTime:   readTime,
		TotalWriteTime:  writeTime,
		TotalBootCount:  p.bootCount.Load(),
		TotalBootTime:   bootTime,
	}

	if readTime > 0 {
		rate := float64(summary.TotalReadBytes) / readTime / 1024.0 / 1024.0
		summary.ReadThroughputMBps = &rate
	}
	if writeTime > 0 {
		rate := float64(summary.TotalWriteBytes) / writeTime / 1024.0 / 1024.0
		summary.WriteThroughputMBps = &rate
	}
	if summary.TotalBootCount > 0 {
		avg := bootTime / float64(summary.TotalBootCount)
		summary.AverageBootSeconds = &avg
	}

	return summary
}
