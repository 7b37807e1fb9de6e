// internal/link/profiling_test.go
package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfiler_RoundTrip(t *testing.T) {
	p := NewProfiler()
	p.Start()

	// 64 MiB read over 2 seconds -> 32 MB/s
	p.RecordRead(64*1024*1024, 2*time.Second)
	// 16 MiB written over 4 seconds -> 4 MB/s
	p.RecordWrite(16*1024*1024, 4*time.Second)
	p.RecordBoot(1500 * time.Millisecond)
	p.RecordBoot(500 * time.Millisecond)

	summary := p.Report()
	assert.True(t, summary.Enabled)
	assert.Equal(t, uint64(64*1024*1024), summary.TotalReadBytes)
	assert.Equal(t, uint64(16*1024*1024), summary.TotalWriteBytes)
	assert.Equal(t, uint64(2), summary.TotalBootCount)

	require.NotNil(t, summary.ReadThroughputMBps)
	assert.InDelta(t, 32.0, *summary.ReadThroughputMBps, 1e-9)
	require.NotNil(t, summary.WriteThroughputMBps)
	assert.InDelta(t, 4.0, *summary.WriteThroughputMBps, 1e-9)
	require.NotNil(t, summary.AverageBootSeconds)
	assert.InDelta(t, 1.0, *summary.AverageBootSeconds, 1e-9)
}

func TestProfiler_RatesOmittedWithoutTime(t *testing.T) {
	p := NewProfiler()
	p.Start()

	// Bytes recorded with zero elapsed time must not produce a rate
	p.RecordRead(1024, 0)

	summary := p.Report()
	assert.Equal(t, uint64(1024), summary.TotalReadBytes)
	assert.Nil(t, summary.ReadThroughputMBps)
	assert.Nil(t, summary.WriteThroughputMBps)
	assert.Nil(t, summary.AverageBootSeconds)
}

func TestProfiler_StartResetsCounters(t *testing.T) {
	p := NewProfiler()
	p.Start()
	p.RecordRead(4096, time.Second)
	p.RecordBoot(time.Second)

	p.Start()
	summary := p.Report()
	assert.Zero(t, summary.TotalReadBytes)
	assert.Zero(t, summary.TotalReadTime)
	assert.Zero(t, summary.TotalBootCount)
	assert.Zero(t, summary.TotalBootTime)
}

func TestProfiler_DisabledDropsRecords(t *testing.T) {
	p := NewProfiler()

	// Never started: records are dropped
	p.RecordWrite(512, time.Second)
	assert.Zero(t, p.Report().TotalWriteBytes)

	p.Start()
	p.RecordWrite(512, time.Second)
	p.Stop()
	p.RecordWrite(512, time.Second)

	// Stop retains the last values but stops counting
	summary := p.Report()
	assert.False(t, summary.Enabled)
	assert.Equal(t, uint64(512), summary.TotalWriteBytes)
}
