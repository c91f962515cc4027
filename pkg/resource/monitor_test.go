package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umami-labs/brigade/pkg/config"
)

// fakeSampler returns scripted readings.
type fakeSampler struct {
	ramPercent float64
	swapMB     float64
	vramGB     float64
	vramPct    float64
}

func (f *fakeSampler) Memory() (float64, float64, error) { return f.ramPercent, f.swapMB, nil }
func (f *fakeSampler) GPU() (float64, float64, error)    { return f.vramGB, f.vramPct, nil }

func TestPressureClassFor(t *testing.T) {
	tests := []struct {
		name   string
		swapMB float64
		want   config.PressureClass
	}{
		{"zero swap", 0, config.PressureNone},
		{"just below moderate", 1499, config.PressureNone},
		{"moderate lower bound", 1500, config.PressureModerate},
		{"moderate upper bound", 2500, config.PressureModerate},
		{"critical", 2501, config.PressureCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PressureClassFor(tt.swapMB))
		})
	}
}

func TestStatusHealthy(t *testing.T) {
	tests := []struct {
		name    string
		sampler fakeSampler
		healthy bool
	}{
		{"all low", fakeSampler{ramPercent: 40}, true},
		{"ram at threshold", fakeSampler{ramPercent: 85}, true},
		{"ram above threshold", fakeSampler{ramPercent: 85.1}, false},
		{"vram above threshold", fakeSampler{ramPercent: 40, vramPct: 93}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(&tt.sampler)
			assert.Equal(t, tt.healthy, m.Status().Healthy)
		})
	}
}

func TestCheckBudget(t *testing.T) {
	m := NewMonitor(&fakeSampler{ramPercent: 50, vramPct: 90})

	// Non-GPU task passes under the general health ceiling.
	require.NoError(t, m.CheckBudget("classify", false))

	// GPU task fails above the GPU ceiling.
	err := m.CheckBudget("embed", true)
	require.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestLeakWatchFlipsAfterThreeGrowths(t *testing.T) {
	sampler := &fakeSampler{}
	m := NewMonitor(sampler)

	released := false
	m.SetReleaseHook(func() { released = true })

	grow := func(deltaMB float64) {
		done := m.LeakWatch()
		sampler.vramGB += deltaMB / 1024
		done()
	}

	// Two growths of 101 MB: no flip.
	grow(101)
	grow(101)
	assert.False(t, m.Degraded())
	assert.False(t, released)

	// Third consecutive growth flips the flag and releases caches.
	grow(101)
	assert.True(t, m.Degraded())
	assert.True(t, released)

	// A clean request clears the streak and the flag.
	grow(0)
	assert.False(t, m.Degraded())
}

func TestLeakWatchSmallGrowthResetsStreak(t *testing.T) {
	sampler := &fakeSampler{}
	m := NewMonitor(sampler)

	grow := func(deltaMB float64) {
		done := m.LeakWatch()
		sampler.vramGB += deltaMB / 1024
		done()
	}

	grow(101)
	grow(101)
	grow(50) // below threshold, streak resets
	grow(101)
	grow(101)
	assert.False(t, m.Degraded())
}
