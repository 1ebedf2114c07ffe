/*
PURPOSE:
  Samples host CPU busy percentage and load average so step logs show
  how contended the machine was during each phase.

ERROR HANDLING:
  - Sampling failures are silent; the step is logged without host figures.

RELATED FILES:
  - internal/engine/runner.go
*/

package engine

import (
	"context"

	"github.com/mackerelio/go-osstat/cpu"
	"github.com/shirou/gopsutil/v4/load"
)

// HostSampler reports host contention next to each measured step, so that
// latency in the load phase can be read against actual CPU pressure.
// A nil *HostSampler samples nothing.
type HostSampler struct {
	prev *cpu.Stats
}

// NewHostSampler takes the baseline CPU reading. It returns nil when the
// platform exposes no CPU counters.
func NewHostSampler() *HostSampler {
	s, err := cpu.Get()
	if err != nil {
		return nil
	}
	return &HostSampler{prev: s}
}

// CPUBusy returns the busy percentage of all CPUs since the previous call.
func (h *HostSampler) CPUBusy() (float64, bool) {
	if h == nil {
		return 0, false
	}
	cur, err := cpu.Get()
	if err != nil {
		return 0, false
	}
	total := float64(cur.Total - h.prev.Total)
	idle := float64(cur.Idle - h.prev.Idle)
	h.prev = cur
	if total <= 0 {
		return 0, false
	}
	return (total - idle) / total * 100, true
}

// Load1 returns the one-minute load average.
func (h *HostSampler) Load1(ctx context.Context) (float64, bool) {
	if h == nil {
		return 0, false
	}
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return 0, false
	}
	return avg.Load1, true
}
