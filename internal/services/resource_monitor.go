package services

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/declinewatch/declinewatch-go/internal/logging"
	"github.com/declinewatch/declinewatch-go/internal/telemetry"
)

// cpuSampleWindow is the blocking comparison window gopsutil uses per CPU
// sample.
const cpuSampleWindow = time.Second

// ResourceSnapshot captures host and process resource usage at one point
// in time.
type ResourceSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsedMB  float64   `json:"memory_used_mb"`
	Goroutines    int       `json:"goroutines"`
}

// ResourceMonitor samples host resources on an interval and logs them, so
// capacity drift shows up in the logs before it shows up as slow audits.
type ResourceMonitor struct {
	mu       sync.RWMutex
	last     ResourceSnapshot
	interval time.Duration
	logger   logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewResourceMonitor builds a monitor. interval <= 0 falls back to 5m.
func NewResourceMonitor(interval time.Duration, logger logging.Logger) *ResourceMonitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.NewStandardLogger("info", "development")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ResourceMonitor{
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sampling loop.
func (m *ResourceMonitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				snap, err := m.Sample(m.ctx)
				if err != nil {
					m.logger.WithComponent("resource_monitor").Warn("Resource sample failed", "error", err)
					continue
				}
				m.logger.LogResourceStats(telemetry.ServiceName, map[string]interface{}{
					"cpu_percent":    snap.CPUPercent,
					"memory_percent": snap.MemoryPercent,
					"memory_used_mb": snap.MemoryUsedMB,
					"goroutines":     snap.Goroutines,
				})
			}
		}
	}()
}

// Stop halts the sampling loop and waits for it to exit.
func (m *ResourceMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Sample reads current usage and records it as the latest snapshot. The
// CPU read blocks for the comparison window.
func (m *ResourceMonitor) Sample(ctx context.Context) (ResourceSnapshot, error) {
	snap := ResourceSnapshot{
		Timestamp:  time.Now(),
		Goroutines: runtime.NumGoroutine(),
	}

	cpuPercent, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil {
		return snap, fmt.Errorf("sample cpu: %w", err)
	}
	if len(cpuPercent) > 0 {
		snap.CPUPercent = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snap, fmt.Errorf("sample memory: %w", err)
	}
	snap.MemoryPercent = memInfo.UsedPercent
	snap.MemoryUsedMB = float64(memInfo.Used) / (1024 * 1024)

	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()
	return snap, nil
}

// Last returns the most recent snapshot, or the zero value before the
// first sample completes.
func (m *ResourceMonitor) Last() ResourceSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
