package recorder

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

type capturedBuffer struct {
	speaker             *Speaker
	samples             frame.PCMFrame
	sampleCount         int
	absoluteStartSample uint64
}

type captureSink struct {
	buffers []capturedBuffer
}

func (c *captureSink) AddBuffer(speaker *Speaker, samples frame.PCMFrame, sampleCount int, absoluteStartSample uint64) {
	c.buffers = append(c.buffers, capturedBuffer{speaker, samples, sampleCount, absoluteStartSample})
}

// Check the buffers are back to back from start and return all their samples.
func (c *captureSink) contiguous(t *testing.T, start uint64) frame.PCMFrame {
	t.Helper()
	var samples frame.PCMFrame
	next := start
	for _, b := range c.buffers {
		require.Equal(t, next, b.absoluteStartSample)
		next += uint64(b.sampleCount)
		samples = append(samples, b.samples...)
	}
	return samples
}

func TestMixdownSinkSumsOverlappingSpeakers(t *testing.T) {
	sink := &captureSink{}
	out := &Speaker{ID: LocalSpeakerID, Name: MixdownName}
	m := NewMixdownSink(sink, out, 1, 960)
	alice := &Speaker{ID: uuid.New(), Name: "Alice"}
	bob := &Speaker{ID: uuid.New(), Name: "Bob"}

	for i := range 10 {
		m.AddBuffer(alice, constant(0.25, 480), 480, uint64(1000+i*480))
		m.AddBuffer(bob, constant(0.5, 480), 480, uint64(1000+i*480))
	}
	// Held back behind the newest audio.
	held := 0
	for _, b := range sink.buffers {
		held += b.sampleCount
	}
	assert.Equal(t, 4800-960, held)

	m.Flush()
	samples := sink.contiguous(t, 1000)
	require.Len(t, samples, 4800)
	for i, s := range samples {
		require.InDelta(t, 0.75, s, 1e-6, "sample %d", i)
	}
	for _, b := range sink.buffers {
		assert.Equal(t, out, b.speaker)
	}
}

func TestMixdownSinkLateSpeakerWithinLatency(t *testing.T) {
	sink := &captureSink{}
	m := NewMixdownSink(sink, &Speaker{Name: MixdownName}, 2, 480)

	m.AddBuffer(nil, constant(0.5, 2*960), 960, 0)
	// Lands inside the held back window.
	m.AddBuffer(nil, constant(0.25, 2*240), 240, 600)
	// Overhangs already submitted audio, only the tail is mixed.
	m.AddBuffer(nil, constant(0.25, 2*480), 480, 300)
	m.Flush()

	samples := sink.contiguous(t, 0)
	require.Len(t, samples, 2*960)
	assert.InDelta(t, 0.5, samples[2*400], 1e-6)
	assert.InDelta(t, 0.75, samples[2*500], 1e-6)
	assert.InDelta(t, 1, samples[2*700], 1e-6)
	assert.InDelta(t, 0.5, samples[2*900], 1e-6)
}

func TestMixdownSinkClips(t *testing.T) {
	sink := &captureSink{}
	m := NewMixdownSink(sink, &Speaker{Name: MixdownName}, 1, 100)
	m.AddBuffer(nil, constant(0.75, 10), 10, 0)
	m.AddBuffer(nil, constant(-0.25, 10), 10, 0)
	m.AddBuffer(nil, constant(0.75, 10), 10, 0)
	m.AddBuffer(nil, constant(-0.75, 10), 10, 10)
	m.AddBuffer(nil, constant(-0.75, 10), 10, 10)
	m.Flush()

	samples := sink.contiguous(t, 0)
	require.Len(t, samples, 20)
	assert.Equal(t, float32(1), samples[0])
	assert.Equal(t, float32(-1), samples[15])
}

func TestMixdownSinkDropsMalformedAndSubmittedOverlap(t *testing.T) {
	sink := &captureSink{}
	m := NewMixdownSink(sink, &Speaker{Name: MixdownName}, 1, 0)

	m.AddBuffer(nil, constant(0.5, 10), 20, 0)
	m.AddBuffer(nil, constant(0.5, 10), 0, 0)
	assert.Empty(t, sink.buffers)

	m.AddBuffer(nil, constant(0.75, 10), 10, 0)
	m.AddBuffer(nil, constant(0.75, 10), 10, 5)
	m.Flush()

	samples := sink.contiguous(t, 0)
	require.Len(t, samples, 15)
	assert.Equal(t, float32(0.75), samples[0])
	assert.Equal(t, float32(0.75), samples[12])
	// The overlap of the second buffer with submitted audio was dropped.
	assert.Equal(t, float32(0.75), samples[7])
}

func TestMixdownSinkFeedsRecorder(t *testing.T) {
	r, w := newTestRecorder(t)
	require.NoError(t, r.SetMixDown(true))
	m := NewMixdownSink(r, r.LocalSpeaker(), 1, 960)
	alice := &Speaker{ID: uuid.New(), Name: "Alice"}
	bob := &Speaker{ID: uuid.New(), Name: "Bob"}

	require.NoError(t, r.Start())
	for i := range 10 {
		m.AddBuffer(alice, constant(0.25, 480), 480, uint64(i*480))
		m.AddBuffer(bob, constant(0.5, 480), 480, uint64(i*480))
	}
	m.Flush()
	require.NoError(t, r.Stop())

	assert.Equal(t, 1, w.count())
	s := w.byName(MixdownName)
	require.NotNil(t, s)
	require.Equal(t, 4800, s.frames())
	assert.NotContains(t, s.samples, float32(0.25))
	assert.NotContains(t, s.samples, float32(0.5))
}
