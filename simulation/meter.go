package simulation

import "time"

// smoothing is the weight of the newest sample in the exponential moving
// average of the step rate.
const smoothing = 0.3

// meter tracks the step rate. Samples are taken when a dispatch is issued,
// so without synchronous timing the rate is optimistic.
type meter struct {
	last    time.Time
	rate    float64
	elapsed time.Duration
	steps   int
}

func (m *meter) start(now time.Time) { m.last = now }

func (m *meter) tick(now time.Time, steps int) {
	dt := now.Sub(m.last)
	m.last = now
	m.elapsed += dt
	m.steps += steps
	if dt <= 0 {
		return
	}
	inst := float64(steps) / dt.Seconds()
	if m.rate == 0 {
		m.rate = inst
		return
	}
	m.rate = smoothing*inst + (1-smoothing)*m.rate
}

// average is the mean step rate over every timed step.
func (m *meter) average() float64 {
	if m.elapsed <= 0 {
		return 0
	}
	return float64(m.steps) / m.elapsed.Seconds()
}

// VRAM is the device memory held by the engine's buffers.
type VRAM struct {
	Used    uint64
	Total   uint64
	Percent float64
}

// Stats is a snapshot of the engine's instrumentation.
type Stats struct {
	Steps          int
	StepsPerSecond float64 // smoothed
	MLUps          float64 // smoothed, million lattice updates per second
	AverageMLUps   float64 // over all timed steps
	Elapsed        time.Duration
	VRAM           VRAM
}

func mlups(cells int, rate float64) float64 {
	return float64(cells) * rate / 1e6
}
