// Package resource samples host memory, swap, and GPU VRAM and classifies
// pressure for the policy engine. Sampling reads /proc/meminfo directly;
// GPU usage comes from an injected Sampler so tests and non-GPU hosts can
// substitute their own.
package resource

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/umami-labs/brigade/pkg/config"
)

// Health thresholds. A host is healthy when RAM and VRAM sit below these.
const (
	maxHealthyRAMPercent  = 85.0
	maxHealthyVRAMPercent = 92.0
	maxGPUTaskVRAMPercent = 85.0
)

// Swap pressure boundaries in MB.
const (
	moderateSwapMB = 1500.0
	criticalSwapMB = 2500.0
)

// Leak watch: consecutive per-request VRAM growths above this flip the
// degraded flag.
const (
	leakGrowthThresholdMB = 100.0
	leakStreakLimit       = 3
)

// ErrBudgetExceeded is returned by CheckBudget when the host cannot take
// more work.
var ErrBudgetExceeded = errors.New("resource budget exceeded")

// Status is one point-in-time sample of host resources.
type Status struct {
	RAMPercent     float64 `json:"ram_percent"`
	SwapMB         float64 `json:"swap_mb"`
	GPUVRAMGB      float64 `json:"gpu_vram_gb"`
	GPUVRAMPercent float64 `json:"gpu_vram_percent"`
	Healthy        bool    `json:"healthy"`
}

// Sampler provides raw memory readings. Implementations must be safe for
// concurrent use.
type Sampler interface {
	// Memory returns used-RAM percent and swap-used MB.
	Memory() (ramPercent, swapMB float64, err error)
	// GPU returns VRAM used in GB and as a percent of capacity.
	// Hosts without a GPU return (0, 0, nil).
	GPU() (vramGB, vramPercent float64, err error)
}

// Monitor samples resources and tracks the process-wide degraded flag.
// The flag is the only process-wide atomic state in the system.
type Monitor struct {
	sampler Sampler

	degraded atomic.Bool

	mu          sync.Mutex
	leakStreak  int
	lastVRAMGB  float64
	releaseHook func()
}

// NewMonitor creates a Monitor over the given sampler. A nil sampler selects
// the /proc-backed default.
func NewMonitor(sampler Sampler) *Monitor {
	if sampler == nil {
		sampler = &procSampler{}
	}
	return &Monitor{sampler: sampler}
}

// SetReleaseHook registers a best-effort cache release callback invoked when
// the leak watch flips the degraded flag.
func (m *Monitor) SetReleaseHook(hook func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseHook = hook
}

// Status samples current resource usage.
func (m *Monitor) Status() Status {
	ram, swap, err := m.sampler.Memory()
	if err != nil {
		slog.Warn("Memory sampling failed, treating host as healthy", "error", err)
	}
	vramGB, vramPct, err := m.sampler.GPU()
	if err != nil {
		slog.Warn("GPU sampling failed, ignoring VRAM", "error", err)
		vramGB, vramPct = 0, 0
	}
	return Status{
		RAMPercent:     ram,
		SwapMB:         swap,
		GPUVRAMGB:      vramGB,
		GPUVRAMPercent: vramPct,
		Healthy:        ram <= maxHealthyRAMPercent && vramPct <= maxHealthyVRAMPercent,
	}
}

// CheckBudget fails when the host is unhealthy, or when the task needs the
// GPU and VRAM usage is already above the GPU task ceiling.
func (m *Monitor) CheckBudget(taskName string, requiresGPU bool) error {
	st := m.Status()
	if !st.Healthy {
		return fmt.Errorf("%w: task %q rejected (ram=%.1f%%, vram=%.1f%%)",
			ErrBudgetExceeded, taskName, st.RAMPercent, st.GPUVRAMPercent)
	}
	if requiresGPU && st.GPUVRAMPercent > maxGPUTaskVRAMPercent {
		return fmt.Errorf("%w: GPU task %q rejected (vram=%.1f%%)",
			ErrBudgetExceeded, taskName, st.GPUVRAMPercent)
	}
	return nil
}

// PressureClass maps swap usage to a pressure class.
func PressureClassFor(swapMB float64) config.PressureClass {
	switch {
	case swapMB > criticalSwapMB:
		return config.PressureCritical
	case swapMB >= moderateSwapMB:
		return config.PressureModerate
	default:
		return config.PressureNone
	}
}

// PressureClass samples swap and classifies it.
func (m *Monitor) PressureClass() config.PressureClass {
	_, swap, err := m.sampler.Memory()
	if err != nil {
		return config.PressureNone
	}
	return PressureClassFor(swap)
}

// Degraded reports the process-wide degraded flag.
func (m *Monitor) Degraded() bool {
	return m.degraded.Load()
}

// LeakWatch brackets one request: call before orchestration, then invoke the
// returned func after. Three consecutive VRAM growths above the threshold
// flip the degraded flag and trigger the release hook; a clean request
// resets the streak and clears the flag.
func (m *Monitor) LeakWatch() func() {
	beforeGB, _, _ := m.sampler.GPU()
	return func() {
		afterGB, _, _ := m.sampler.GPU()
		growthMB := (afterGB - beforeGB) * 1024

		m.mu.Lock()
		defer m.mu.Unlock()
		if growthMB > leakGrowthThresholdMB {
			m.leakStreak++
			slog.Warn("VRAM growth observed",
				"growth_mb", growthMB, "streak", m.leakStreak)
			if m.leakStreak >= leakStreakLimit && !m.degraded.Load() {
				m.degraded.Store(true)
				slog.Error("VRAM leak suspected, entering degraded mode",
					"streak", m.leakStreak)
				if m.releaseHook != nil {
					m.releaseHook()
				}
			}
			return
		}
		if m.leakStreak > 0 || m.degraded.Load() {
			slog.Info("Clean request, clearing VRAM leak streak")
		}
		m.leakStreak = 0
		m.degraded.Store(false)
	}
}

// procSampler reads /proc/meminfo. GPU readings are unavailable on hosts
// without an injected sampler.
type procSampler struct{}

func (p *procSampler) Memory() (float64, float64, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, 0, err
	}
	fields := map[string]float64{}
	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		key := strings.TrimSuffix(parts[0], ":")
		if kb, err := strconv.ParseFloat(parts[1], 64); err == nil {
			fields[key] = kb
		}
	}
	total := fields["MemTotal"]
	if total == 0 {
		return 0, 0, errors.New("MemTotal missing from /proc/meminfo")
	}
	available := fields["MemAvailable"]
	ramPercent := (total - available) / total * 100
	swapUsedMB := (fields["SwapTotal"] - fields["SwapFree"]) / 1024
	return ramPercent, swapUsedMB, nil
}

func (p *procSampler) GPU() (float64, float64, error) {
	return 0, 0, nil
}
