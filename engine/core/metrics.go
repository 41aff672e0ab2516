package core

import (
	"github.com/spaghettifunk/shaderpixel/engine/containers"
)

const AVG_COUNT uint8 = 30

// HistoryWindow is the span, in seconds, of frame samples kept for the overlay chart.
const HistoryWindow float64 = 5.0

const historyCapacity = 4096

// FrameSample is one frame time taken at session time At.
type FrameSample struct {
	At      float64
	FrameMS float64
}

type Metrics struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64

	history *containers.RingQueue[FrameSample]
}

func NewMetrics() *Metrics {
	return &Metrics{
		history: containers.NewRingQueue[FrameSample](historyCapacity),
	}
}

// Update records a frame that took frameElapsedTime seconds and ended at
// session time now.
func (m *Metrics) Update(frameElapsedTime, now float64) {
	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	m.MStimes[m.FrameAVGCounter] = frameMS
	if m.FrameAVGCounter == AVG_COUNT-1 {
		m.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.MSavg += m.MStimes[i]
		}
		m.MSavg /= float64(AVG_COUNT)
	}
	m.FrameAVGCounter++
	m.FrameAVGCounter %= AVG_COUNT

	// Count all Frames, then fold them into FPS once a second has passed.
	m.Frames++
	m.AccumulatedFrameMS += frameMS
	if m.AccumulatedFrameMS > 1000 {
		m.FPS = float64(m.Frames)
		m.AccumulatedFrameMS -= 1000
		m.Frames = 0
	}

	m.history.Push(FrameSample{At: now, FrameMS: frameMS})
	for {
		oldest, err := m.history.Peek()
		if err != nil || now-oldest.At <= HistoryWindow {
			break
		}
		_, _ = m.history.Dequeue()
	}
}

func (m *Metrics) FPSValue() float64 {
	return m.FPS
}

func (m *Metrics) FrameTime() float64 {
	return m.MSavg
}

// History returns the frame samples of the last HistoryWindow seconds, oldest first.
func (m *Metrics) History() []FrameSample {
	return m.history.Values()
}
