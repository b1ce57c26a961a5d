package device

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/recorder"
)

// --------------------------------------------------------------------------------
// RecorderSinkDevice

// Define an AudioSinkDevice that submits every incoming frame to a recorder
// as audio of a single speaker.
//
// Frames are placed back to back on the recording timeline, starting at the absolute
// sample given on creation. Frames must already be in the recorder's sample rate and
// channel layout.
type RecorderSinkDevice struct {
	logger *slog.Logger
	uuid   uuid.UUID

	sink       recorder.BufferSink
	speaker    *recorder.Speaker
	properties audiodevice.DeviceProperties

	// Absolute sample number of the next frame. Only touched by the consuming goroutine.
	nextSample uint64

	done chan struct{}
}

// Create a new RecorderSinkDevice for speaker, whose first frame lands on startSample.
// If no logger is given, slog.Default() is used.
func NewRecorderSinkDevice(
	sink recorder.BufferSink,
	speaker *recorder.Speaker,
	properties audiodevice.DeviceProperties,
	startSample uint64,
	logger *slog.Logger,
) *RecorderSinkDevice {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	return &RecorderSinkDevice{
		logger: logger.With(
			"recorder sink device uuid", id,
			"speaker", speaker.Name,
		),
		uuid:       id,
		sink:       sink,
		speaker:    speaker,
		properties: properties,
		nextSample: startSample,
		done:       make(chan struct{}),
	}
}

// Set the source channel of this audio device and start submitting frames.
// Done is closed once the source stream is closed and every frame has been submitted.
func (d *RecorderSinkDevice) SetStream(sourceStream <-chan frame.PCMFrame) {
	go func() {
		defer close(d.done)

		var submitted uint64
		for pcmFrame := range sourceStream {
			frames := len(pcmFrame) / d.properties.NumChannels
			if frames == 0 {
				continue
			}
			d.sink.AddBuffer(d.speaker, pcmFrame, frames, d.nextSample)
			d.nextSample += uint64(frames)
			submitted += uint64(frames)
		}
		d.logger.Debug(
			"source stream closed",
			"submittedFrames", submitted,
			"nextSample", d.nextSample,
		)
	}()
}

func (d *RecorderSinkDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}

// Closed once the source stream has ended.
func (d *RecorderSinkDevice) Done() <-chan struct{} {
	return d.done
}
