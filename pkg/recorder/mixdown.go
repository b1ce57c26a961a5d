package recorder

import (
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

// MixdownSink sums the buffers of any number of speakers on the absolute sample clock
// and submits the mix to another BufferSink as a single speaker.
//
// Live speakers deliver their audio at slightly different times, so the mix is held back
// by latency frames behind the newest audio before it is submitted. Audio arriving for a
// part of the timeline already submitted is discarded. Call Flush once every producer
// has stopped to submit the rest.
type MixdownSink struct {
	sink     BufferSink
	speaker  *Speaker
	channels int
	latency  uint64

	mu      sync.Mutex
	started bool
	// Absolute sample of mix[0].
	start uint64
	// Absolute sample past the newest audio seen.
	end uint64
	mix frame.PCMFrame
}

// Create a MixdownSink submitting to sink as speaker. Buffers carry channels interleaved
// channels; latency is in frames.
func NewMixdownSink(sink BufferSink, speaker *Speaker, channels int, latency uint64) *MixdownSink {
	return &MixdownSink{
		sink:     sink,
		speaker:  speaker,
		channels: max(channels, 1),
		latency:  latency,
	}
}

// Add a buffer of any speaker to the mix.
func (m *MixdownSink) AddBuffer(_ *Speaker, samples frame.PCMFrame, sampleCount int, absoluteStartSample uint64) {
	if sampleCount <= 0 || sampleCount*m.channels > len(samples) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		m.started = true
		m.start = absoluteStartSample
		m.end = absoluteStartSample
	}
	if absoluteStartSample < m.start {
		late := m.start - absoluteStartSample
		if late >= uint64(sampleCount) {
			return
		}
		samples = samples[late*uint64(m.channels):]
		sampleCount -= int(late)
		absoluteStartSample = m.start
	}

	offset := int(absoluteStartSample-m.start) * m.channels
	length := sampleCount * m.channels
	if need := offset + length; need > len(m.mix) {
		m.mix = append(m.mix, make(frame.PCMFrame, need-len(m.mix))...)
	}
	for i, sample := range samples[:length] {
		m.mix[offset+i] += sample
	}
	m.end = max(m.end, absoluteStartSample+uint64(sampleCount))

	if m.end-m.start > m.latency {
		m.submit(m.end - m.start - m.latency)
	}
}

// Submit everything mixed so far.
func (m *MixdownSink) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.end > m.start {
		m.submit(m.end - m.start)
	}
}

// Submit the first frames of the mix and advance past them. Must hold mu.
func (m *MixdownSink) submit(frames uint64) {
	n := int(frames) * m.channels
	out := make(frame.PCMFrame, n)
	for i, sample := range m.mix[:n] {
		out[i] = max(-1, min(1, sample))
	}
	m.sink.AddBuffer(m.speaker, out, int(frames), m.start)

	m.mix = append(frame.PCMFrame(nil), m.mix[n:]...)
	m.start += frames
}
