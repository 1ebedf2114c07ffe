package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/daryltucker/halospec-bench/internal/config"
	"github.com/daryltucker/halospec-bench/internal/model"
)

func testPolicy() Policy {
	return NewPolicy(config.DefaultConfig().Adaptive)
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestNextWithoutObservationKeepsCurrent(t *testing.T) {
	p := testPolicy()
	for _, th := range []Thresholds{{Low: ms(1), High: ms(2)}, {Low: ms(9000), High: ms(22000)}, {}} {
		assert.Equal(t, model.DraftLength(4), p.Next(0, false, 4, th))
	}
}

func TestNextHysteresis(t *testing.T) {
	p := testPolicy()
	th := Thresholds{Low: ms(9000), High: ms(22000)}

	assert.Equal(t, model.DraftLength(5), p.Next(ms(5000), true, 4, th), "fast server grows")
	assert.Equal(t, model.DraftLength(8), p.Next(ms(5000), true, 8, th), "growth clamps at 8")

	down := p.Next(ms(30000), true, 4, th)
	assert.Less(t, down, model.DraftLength(4))
	assert.True(t, down.Valid())
	assert.Equal(t, model.DraftLength(1), p.Next(ms(30000), true, 1, th), "shrink clamps at 1")

	assert.Equal(t, model.DraftLength(5), p.Next(ms(15000), true, 4, th), "stable band explores upward")
	assert.Equal(t, model.DraftLength(6), p.Next(ms(15000), true, 6, th), "exploration stops at ceiling")
	assert.Equal(t, model.DraftLength(7), p.Next(ms(15000), true, 7, th), "stable band never shrinks")
}

func TestNextDecreaseStepIsConfigurable(t *testing.T) {
	p := testPolicy()
	p.DecreaseStep = 2
	th := Thresholds{Low: ms(9000), High: ms(22000)}
	assert.Equal(t, model.DraftLength(2), p.Next(ms(30000), true, 4, th))
	assert.Equal(t, model.DraftLength(1), p.Next(ms(30000), true, 2, th))
}

func TestNextAlwaysInRange(t *testing.T) {
	p := testPolicy()
	p.DecreaseStep = 2
	th := Thresholds{Low: ms(9000), High: ms(22000)}
	for cur := model.MinDraftLength; cur <= model.MaxDraftLength; cur++ {
		for _, lat := range []int{0, 5000, 9000, 15000, 22000, 40000} {
			assert.True(t, p.Next(ms(lat), true, cur, th).Valid())
		}
	}
}

func TestCalibrate(t *testing.T) {
	p := testPolicy()

	th := p.Calibrate([]time.Duration{ms(1000), ms(2000), ms(3000), ms(4000)})
	assert.True(t, th.Calibrated)
	assert.Equal(t, ms(1700), th.Low)  // p50 2000 * 0.85
	assert.Equal(t, ms(4200), th.High) // p95 4000 * 1.05

	th = p.Calibrate(nil)
	assert.False(t, th.Calibrated)
	assert.Equal(t, 9*time.Second, th.Low)
	assert.Equal(t, 22*time.Second, th.High)
}

func TestEMA(t *testing.T) {
	e := EMA{Alpha: 0.4}
	_, ok := e.Value()
	assert.False(t, ok)

	e.Observe(ms(1000))
	v, ok := e.Value()
	assert.True(t, ok)
	assert.Equal(t, ms(1000), v)

	e.Observe(ms(2000))
	v, _ = e.Value()
	assert.Equal(t, ms(1400), v)

	e.Reset()
	_, ok = e.Value()
	assert.False(t, ok)
}
