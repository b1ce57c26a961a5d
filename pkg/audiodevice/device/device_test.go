package device

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/recorder"
)

// Write a 16 bit WAV file holding data.
func writeWAV(t *testing.T, sampleRate, numChannels int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	encoder := wav.NewEncoder(f, sampleRate, 16, numChannels, 1)
	require.NoError(t, encoder.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: numChannels},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, encoder.Close())
	return path
}

func collect(t *testing.T, stream <-chan frame.PCMFrame) []frame.PCMFrame {
	t.Helper()
	var frames []frame.PCMFrame
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-stream:
			if !ok {
				return frames
			}
			frames = append(frames, f)
		case <-timeout:
			t.Fatal("stream was not closed")
		}
	}
}

func feed(frames ...frame.PCMFrame) <-chan frame.PCMFrame {
	stream := make(chan frame.PCMFrame)
	go func() {
		defer close(stream)
		for _, f := range frames {
			stream <- f
		}
	}()
	return stream
}

type submittedBuffer struct {
	speaker             *recorder.Speaker
	samples             frame.PCMFrame
	sampleCount         int
	absoluteStartSample uint64
}

type fakeBufferSink struct {
	mu      sync.Mutex
	buffers []submittedBuffer
}

func (s *fakeBufferSink) AddBuffer(speaker *recorder.Speaker, samples frame.PCMFrame, sampleCount int, absoluteStartSample uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers = append(s.buffers, submittedBuffer{speaker, samples, sampleCount, absoluteStartSample})
}

// --------------------------------------------------------------------------------

func TestFileAudioInputDeviceDrain(t *testing.T) {
	data := make([]int, 2*1000)
	for i := range data {
		data[i] = i
	}
	path := writeWAV(t, 8000, 2, data)

	d, err := NewFileAudioInputDevice(path, 20*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Equal(t, audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 2}, d.GetDeviceProperties())
	assert.Equal(t, 125*time.Millisecond, d.Duration())

	d.Drain(context.Background())
	frames := collect(t, d.GetStream())

	// 160 frames of 2 channels per 20ms, the last frame is short.
	require.Len(t, frames, 7)
	assert.Len(t, frames[0], 320)
	assert.Len(t, frames[6], 2000-6*320)
	assert.InDelta(t, 5.0/32768, frames[0][5], 1e-9)
}

func TestFileAudioInputDeviceCancel(t *testing.T) {
	path := writeWAV(t, 8000, 1, make([]int, 8000))
	d, err := NewFileAudioInputDevice(path, 10*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	d.Play(ctx)
	<-d.GetStream()
	cancel()

	// The stream closes early instead of playing the whole second.
	frames := collect(t, d.GetStream())
	assert.Less(t, len(frames), 99)
}

func TestFileAudioInputDeviceRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a wav"), 0644))

	_, err := NewFileAudioInputDevice(path, 20*time.Millisecond, nil)
	assert.ErrorIs(t, err, ErrInvalidAudioFile)

	_, err = NewFileAudioInputDevice(filepath.Join(t.TempDir(), "missing.wav"), 20*time.Millisecond, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStereoToMono(t *testing.T) {
	d, err := NewAudioFormatConversionDevice(
		audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 2},
		audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 1},
		nil,
	)
	require.NoError(t, err)

	source := frame.PCMFrame{1, 0, 0.5, 0.5, -1, 0}
	d.SetStream(feed(source))
	frames := collect(t, d.GetStream())

	require.Len(t, frames, 1)
	assert.Equal(t, frame.PCMFrame{0.5, 0.5, -0.5}, frames[0])
	assert.Equal(t, frame.PCMFrame{1, 0, 0.5, 0.5, -1, 0}, source)
}

func TestMonoToStereo(t *testing.T) {
	d, err := NewAudioFormatConversionDevice(
		audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 1},
		audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 2},
		nil,
	)
	require.NoError(t, err)

	d.SetStream(feed(frame.PCMFrame{0.25, -0.5}, frame.PCMFrame{1}))
	frames := collect(t, d.GetStream())

	require.Len(t, frames, 2)
	assert.Equal(t, frame.PCMFrame{0.25, 0.25, -0.5, -0.5}, frames[0])
	assert.Equal(t, frame.PCMFrame{1, 1}, frames[1])
}

func TestResampleKeepsDuration(t *testing.T) {
	d, err := NewAudioFormatConversionDevice(
		audiodevice.DeviceProperties{SampleRate: 44100, NumChannels: 2},
		audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 1},
		nil,
	)
	require.NoError(t, err)

	const sourceFrames = 441
	var inputs []frame.PCMFrame
	for range 100 {
		inputs = append(inputs, make(frame.PCMFrame, 2*sourceFrames))
	}
	d.SetStream(feed(inputs...))

	total := 0
	for _, f := range collect(t, d.GetStream()) {
		total += len(f)
	}
	// One second of audio, less whatever the resampler still holds.
	assert.InDelta(t, 48000, total, 500)
}

func TestConversionRejectsUnsupportedChannels(t *testing.T) {
	_, err := NewAudioFormatConversionDevice(
		audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 6},
		audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 1},
		nil,
	)
	assert.Error(t, err)
}

func TestVolumeAdjust(t *testing.T) {
	d := NewAudioAugmentationDevice(audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 1})
	d.SetVolumeAdjustMagnitude(2)
	assert.Equal(t, float32(2), d.GetVolumeAdjustMagnitude())

	source := frame.PCMFrame{0.25, -0.75, 0}
	d.SetStream(feed(source))
	frames := collect(t, d.GetStream())

	require.Len(t, frames, 1)
	assert.Equal(t, frame.PCMFrame{0.5, -1, 0}, frames[0])
	assert.Equal(t, frame.PCMFrame{0.25, -0.75, 0}, source)

	d.SetVolumeAdjustMagnitude(-3)
	assert.Equal(t, float32(0), d.GetVolumeAdjustMagnitude())
}

func TestRecorderSinkDeviceStampsFrames(t *testing.T) {
	sink := &fakeBufferSink{}
	speaker := &recorder.Speaker{ID: uuid.New(), Name: "Alice"}
	d := NewRecorderSinkDevice(sink, speaker, audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 2}, 1000, nil)

	d.SetStream(feed(make(frame.PCMFrame, 960), frame.PCMFrame{}, make(frame.PCMFrame, 480)))
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("sink device did not finish")
	}

	require.Len(t, sink.buffers, 2)
	assert.Equal(t, speaker, sink.buffers[0].speaker)
	assert.Equal(t, 480, sink.buffers[0].sampleCount)
	assert.Equal(t, uint64(1000), sink.buffers[0].absoluteStartSample)
	assert.Equal(t, 240, sink.buffers[1].sampleCount)
	assert.Equal(t, uint64(1480), sink.buffers[1].absoluteStartSample)
}

func TestFileToRecorderPipeline(t *testing.T) {
	path := writeWAV(t, 16000, 2, make([]int, 2*16000))
	source, err := NewFileAudioInputDevice(path, 20*time.Millisecond, nil)
	require.NoError(t, err)

	conversion, err := NewAudioFormatConversionDevice(
		source.GetDeviceProperties(),
		audiodevice.DeviceProperties{SampleRate: 16000, NumChannels: 1},
		nil,
	)
	require.NoError(t, err)
	gain := NewAudioAugmentationDevice(conversion.GetDeviceProperties())

	sink := &fakeBufferSink{}
	recorderSink := NewRecorderSinkDevice(sink, &recorder.Speaker{ID: uuid.New(), Name: "File"}, gain.GetDeviceProperties(), 0, nil)

	conversion.SetStream(source.GetStream())
	gain.SetStream(conversion.GetStream())
	recorderSink.SetStream(gain.GetStream())
	source.Drain(context.Background())

	select {
	case <-recorderSink.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not finish")
	}

	require.Len(t, sink.buffers, 50)
	last := sink.buffers[len(sink.buffers)-1]
	assert.Equal(t, uint64(16000), last.absoluteStartSample+uint64(last.sampleCount))
}

func TestMixerSumsSources(t *testing.T) {
	props := audiodevice.DeviceProperties{SampleRate: 1000, NumChannels: 1}
	mixer := NewMixerDevice(props, 4*time.Millisecond, nil)

	require.NoError(t, mixer.AddStream(feed(frame.PCMFrame{0.1, 0.1, 0.1}, frame.PCMFrame{0.1, 0.1, 0.1})))
	require.NoError(t, mixer.AddStream(feed(frame.PCMFrame{0.2, 0.2})))
	require.NoError(t, mixer.AddStream(feed(frame.PCMFrame{0.9, 0.9, 0.9, 0.9, 0.9})))
	mixer.Start()

	var mixed frame.PCMFrame
	for _, f := range collect(t, mixer.GetStream()) {
		mixed = append(mixed, f...)
	}
	// Clipped while all three overlap, the longest source carries the tail.
	expected := []float32{1, 1, 1, 1, 1, 0.1}
	require.Len(t, mixed, len(expected))
	for i := range expected {
		assert.InDelta(t, expected[i], mixed[i], 1e-6, "sample %d", i)
	}
}

func TestMixerFrameSize(t *testing.T) {
	props := audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 2}
	mixer := NewMixerDevice(props, 20*time.Millisecond, nil)
	require.NoError(t, mixer.AddStream(feed(make(frame.PCMFrame, 500), make(frame.PCMFrame, 500))))
	mixer.Start()

	frames := collect(t, mixer.GetStream())
	require.Len(t, frames, 4)
	for _, f := range frames[:3] {
		assert.Len(t, f, 320)
	}
	assert.Len(t, frames[3], 40)
}

func TestMixerRejectsLateStreams(t *testing.T) {
	mixer := NewMixerDevice(audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 1}, 20*time.Millisecond, nil)
	mixer.Start()
	assert.ErrorIs(t, mixer.AddStream(feed()), ErrMixerStarted)
	assert.Empty(t, collect(t, mixer.GetStream()))
}

func TestMixerClose(t *testing.T) {
	mixer := NewMixerDevice(audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 1}, 20*time.Millisecond, nil)
	require.NoError(t, mixer.AddStream(make(chan frame.PCMFrame)))
	mixer.Start()
	mixer.Close()
	assert.Empty(t, collect(t, mixer.GetStream()))
}

func TestMixerKeepsChannelsAligned(t *testing.T) {
	props := audiodevice.DeviceProperties{SampleRate: 1000, NumChannels: 2}
	mixer := NewMixerDevice(props, 2*time.Millisecond, nil)

	// Three whole stereo frames, then a dangling left sample.
	require.NoError(t, mixer.AddStream(feed(frame.PCMFrame{0.1, -0.1, 0.1, -0.1, 0.1, -0.1, 0.1})))
	require.NoError(t, mixer.AddStream(feed(frame.PCMFrame{0.2, -0.2})))
	mixer.Start()

	var mixed frame.PCMFrame
	for _, f := range collect(t, mixer.GetStream()) {
		assert.Zero(t, len(f)%2)
		mixed = append(mixed, f...)
	}
	expected := []float32{0.3, -0.3, 0.1, -0.1, 0.1, -0.1}
	require.Len(t, mixed, len(expected))
	for i := range expected {
		assert.InDelta(t, expected[i], mixed[i], 1e-6, "sample %d", i)
	}
}
