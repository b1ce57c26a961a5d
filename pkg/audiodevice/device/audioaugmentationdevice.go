package device

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

// Middle-man processing device to handle audio augmentations,
// such as the gain applied to a speaker before recording.
// This device is both a sink and a source!
type AudioAugmentationDevice struct {
	deviceProperties audiodevice.DeviceProperties

	// The stream that data *arrives on*
	sourceStream <-chan frame.PCMFrame

	// The stream that data *leaves on*
	sinkStream chan frame.PCMFrame

	augmentationFunctions []audioAugmentationFunction

	// float32 bits, changed while frames flow.
	volumeAdjustMagnitude atomic.Uint32

	shutdownOnce sync.Once
}

// Create a new AudioAugmentationDevice, automatically adding
// audioAugmentationFunctions:
//   - volumeAdjust (controlled with AudioAugmentationDevice.SetVolumeAdjustMagnitude)
//     (0.0 for mute, no cap on volume, but samples are clipped to [-1, 1])
//
// This device will only start processing once SetStream is called.
func NewAudioAugmentationDevice(deviceProperties audiodevice.DeviceProperties) *AudioAugmentationDevice {
	device := &AudioAugmentationDevice{
		deviceProperties: deviceProperties,
		sinkStream:       make(chan frame.PCMFrame),
	}
	device.SetVolumeAdjustMagnitude(1.0)
	device.augmentationFunctions = []audioAugmentationFunction{
		device.volumeAdjust,
	}
	return device
}

// --------------------------------------------------------------------------------
// AudioSourceDevice Interface

// Get the source stream of this audio device.
// Raw audio data (as PCMFrames) will arrive on the returned channel.
func (d *AudioAugmentationDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkStream
}

// It is assumed that once closed, this device will transmit no more information,
// and will consume no more information.
func (d *AudioAugmentationDevice) Close() {
	d.shutdownOnce.Do(func() {
		close(d.sinkStream)
	})
}

// The device properties of the incoming and outgoing PCMFrames are identical,
// so this serves as both Source and Sink Device Properties
func (d *AudioAugmentationDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.deviceProperties
}

// --------------------------------------------------------------------------------
// AudioSinkDevice Interface

// Set the source channel of this audio device, i.e. where data comes from.
// When this stream is closed, this device closes its own stream.
func (d *AudioAugmentationDevice) SetStream(sourceStream <-chan frame.PCMFrame) {
	d.sourceStream = sourceStream
	go func() {
		for pcmFrame := range d.sourceStream {
			for _, f := range d.augmentationFunctions {
				pcmFrame = f(pcmFrame)
			}
			d.sinkStream <- pcmFrame
		}
		d.Close()
	}()
}

// --------------------------------------------------------------------------------
// Methods relating to changing the augmentation functions

// Set the volumeAdjustMagnitude to a new value. Negative values are treated as 0.
// 0.0 means muted, 1.0 is natural scaling.
func (d *AudioAugmentationDevice) SetVolumeAdjustMagnitude(volumeAdjustMagnitude float32) {
	if volumeAdjustMagnitude < 0.0 {
		volumeAdjustMagnitude = 0.0
	}
	d.volumeAdjustMagnitude.Store(math.Float32bits(volumeAdjustMagnitude))
}

func (d *AudioAugmentationDevice) GetVolumeAdjustMagnitude() float32 {
	return math.Float32frombits(d.volumeAdjustMagnitude.Load())
}

// --------------------------------------------------------------------------------

// An audioAugmentationFunction produces PCMFrames with the same device properties
// as sourceFrame.
type audioAugmentationFunction func(sourceFrame frame.PCMFrame) frame.PCMFrame

func (d *AudioAugmentationDevice) volumeAdjust(sourceFrame frame.PCMFrame) frame.PCMFrame {
	magnitude := d.GetVolumeAdjustMagnitude()
	if magnitude == 1.0 {
		return sourceFrame
	}

	out := make(frame.PCMFrame, len(sourceFrame))
	for i, v := range sourceFrame {
		out[i] = max(-1, min(1, v*magnitude))
	}
	return out
}
