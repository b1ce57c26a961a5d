package audiodevice

import "github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"

type DeviceProperties struct {
	SampleRate  int
	NumChannels int
}

// Interface for audio source devices, e.g. an audio file being played into a recording.
//
// Source devices need only define some way to get data out of the device,
// which returns a channel (stream) of PCMFrames.
//
// Frames sent on the stream belong to the receiver; a source never touches a frame again once sent.
type AudioSourceDevice interface {
	// Get the stream of this audio device.
	//
	// Raw audio data (as PCMFrames) will arrive on the returned channel.
	GetStream() <-chan frame.PCMFrame

	// Meaningfully close the AudioSourceDevice, including any cleanup of
	// memory and closing of channels.
	//
	// It is assumed that once closed, this device will transmit no more information.
	Close()

	GetDeviceProperties() DeviceProperties
}

// Interface for audio sink devices, e.g. the recorder.
//
// Sink devices need only define some way to consume data,
// taken as a channel (stream) of PCMFrames.
type AudioSinkDevice interface {
	// Set the source stream of this audio device.
	//
	// Raw audio data (as PCMFrames) will arrive on the given channel.
	//
	// When this stream is closed, it is assumed the device will be cleaned up
	// (memory will be freed, other channels will be closed, etc)
	SetStream(sourceStream <-chan frame.PCMFrame)

	GetDeviceProperties() DeviceProperties

	// There is no Close: closing a sink that is still receiving would make the upstream
	// source send on a closed channel. Sinks close themselves when their source stream
	// is closed, so closing the first source cascades down the pipeline.
}
