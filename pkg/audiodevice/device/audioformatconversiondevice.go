package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/oov/audio/resampler"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

const resampleQuality = 10

// Middle-man processing device to handle format mismatches
// between the source data format and the sink data format.
//
// e.g. if the source is a 44.1kHz stereo file but the recorder takes 48kHz mono,
// this device will handle the conversion.
//
// This device is both a sink and a source!
type AudioFormatConversionDevice struct {
	logger *slog.Logger

	// The naming convention for the channels is backwards to what is expected:
	// the source channel is the *external* source, i.e. the channel data arrives on,
	// and the sink channel is the *external* sink, i.e. the channel data leaves on.
	//
	// GetStream returns the sink channel.
	// SetStream sets the source channel.

	// The stream that data *arrives on*
	sourceChannel    <-chan frame.PCMFrame
	sourceProperties audiodevice.DeviceProperties

	// The stream that data *leaves on*
	sinkChannel    chan frame.PCMFrame
	sinkProperties audiodevice.DeviceProperties

	// The functions to apply when processing the source data to sink format
	formatConversionFunctions []audioFormatConversionFunction

	shutdownOnce sync.Once
}

// Create a new AudioFormatConversionDevice by defining:
// - the source properties (the properties of the audio being fed into this device)
// - the sink properties (the properties of the audio leaving this device)
//
// Channel conversion supports mono and stereo on either side.
// This device will only start converting once SetStream is called.
func NewAudioFormatConversionDevice(
	sourceProperties audiodevice.DeviceProperties,
	sinkProperties audiodevice.DeviceProperties,
	logger *slog.Logger,
) (*AudioFormatConversionDevice, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, p := range []audiodevice.DeviceProperties{sourceProperties, sinkProperties} {
		if p.NumChannels != 1 && p.NumChannels != 2 {
			return nil, fmt.Errorf("unsupported channel count %d", p.NumChannels)
		}
		if p.SampleRate <= 0 {
			return nil, fmt.Errorf("unsupported sample rate %d", p.SampleRate)
		}
	}

	formatConversionFunctions := make([]audioFormatConversionFunction, 0)
	if sourceProperties.NumChannels == 1 && sinkProperties.NumChannels == 2 {
		logger.Debug("adding mono to stereo")
		formatConversionFunctions = append(formatConversionFunctions, monoToStereo)
	}
	if sourceProperties.NumChannels == 2 && sinkProperties.NumChannels == 1 {
		logger.Debug("adding stereo to mono")
		formatConversionFunctions = append(formatConversionFunctions, stereoToMono)
	}
	if sourceProperties.SampleRate != sinkProperties.SampleRate {
		logger.Debug(
			"adding resampler",
			"sourceSampleRate", sourceProperties.SampleRate,
			"sinkSampleRate", sinkProperties.SampleRate,
		)
		formatConversionFunctions = append(formatConversionFunctions, newResampleFunction(sourceProperties, sinkProperties))
	}

	return &AudioFormatConversionDevice{
		logger:                    logger,
		sourceProperties:          sourceProperties,
		sinkProperties:            sinkProperties,
		sinkChannel:               make(chan frame.PCMFrame),
		formatConversionFunctions: formatConversionFunctions,
	}, nil
}

// --------------------------------------------------------------------------------
// AudioSourceDevice Interface

// Get the source stream of this audio device.
// Raw audio data (as PCMFrames) will arrive on the returned channel.
func (d *AudioFormatConversionDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkChannel
}

// Meaningfully close the AudioSourceDevice, including any cleanup of
// memory and closing of channels.
//
// It is assumed that once closed, this device will transmit no more information.
func (d *AudioFormatConversionDevice) Close() {
	d.shutdownOnce.Do(func() {
		close(d.sinkChannel)
	})
}

// WARNING:
// GetDeviceProperties of the AudioFormatConversionDevice returns the
// device properties of the LEAVING data. i.e. the data that exits this device!
//
// If you need the properties of the data entering this device, call GetSourceDeviceProperties()
func (d *AudioFormatConversionDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.sinkProperties
}

// --------------------------------------------------------------------------------
// AudioSinkDevice Interface

// Set the source channel of this audio device, i.e. where data comes from.
// Raw audio data (as PCMFrames) will arrive on the given channel.
//
// When this stream is closed, this device closes its own stream.
func (d *AudioFormatConversionDevice) SetStream(sourceChannel <-chan frame.PCMFrame) {
	d.sourceChannel = sourceChannel
	go func() {
		for pcmFrame := range d.sourceChannel {
			for _, f := range d.formatConversionFunctions {
				pcmFrame = f(pcmFrame)
			}
			if len(pcmFrame) == 0 {
				// The resampler may hold back a whole short frame.
				continue
			}
			d.sinkChannel <- pcmFrame
		}
		d.logger.Debug("source stream closed")
		d.Close()
	}()
}

func (d *AudioFormatConversionDevice) GetSourceDeviceProperties() audiodevice.DeviceProperties {
	return d.sourceProperties
}

// --------------------------------------------------------------------------------

// Returns a newly allocated frame; sourceFrame is left untouched.
type audioFormatConversionFunction func(sourceFrame frame.PCMFrame) frame.PCMFrame

func monoToStereo(sourceFrame frame.PCMFrame) frame.PCMFrame {
	out := make(frame.PCMFrame, 2*len(sourceFrame))
	for i, v := range sourceFrame {
		out[2*i] = v
		out[2*i+1] = v
	}
	return out
}

func stereoToMono(sourceFrame frame.PCMFrame) frame.PCMFrame {
	out := make(frame.PCMFrame, len(sourceFrame)/2)
	for i := range out {
		out[i] = (sourceFrame[2*i] + sourceFrame[2*i+1]) / 2
	}
	return out
}

func newResampleFunction(sourceProperties audiodevice.DeviceProperties, sinkProperties audiodevice.DeviceProperties) audioFormatConversionFunction {
	numChannels := sinkProperties.NumChannels
	r := resampler.New(numChannels, sourceProperties.SampleRate, sinkProperties.SampleRate, resampleQuality)

	// Enough room for every frame a source frame can resample to, plus the resampler's latency.
	outputLength := func(inputFrames int) int {
		return inputFrames*sinkProperties.SampleRate/sourceProperties.SampleRate + 64
	}

	if numChannels == 1 {
		return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
			out := make(frame.PCMFrame, outputLength(len(sourceFrame)))
			_, written := r.ProcessFloat32(0, sourceFrame, out)
			return out[:written]
		}
	}

	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		inputFrames := len(sourceFrame) / 2

		// Decode to planar, sourceFrame is interleaved
		left := make(frame.PCMFrame, inputFrames)
		right := make(frame.PCMFrame, inputFrames)
		for i := range inputFrames {
			left[i] = sourceFrame[2*i]
			right[i] = sourceFrame[2*i+1]
		}

		leftOut := make(frame.PCMFrame, outputLength(inputFrames))
		rightOut := make(frame.PCMFrame, outputLength(inputFrames))
		_, written := r.ProcessFloat32(0, left, leftOut)
		_, rightWritten := r.ProcessFloat32(1, right, rightOut)
		written = min(written, rightWritten)

		// Interleave again
		out := make(frame.PCMFrame, 2*written)
		for i := range written {
			out[2*i] = leftOut[i]
			out[2*i+1] = rightOut[i]
		}
		return out
	}
}
