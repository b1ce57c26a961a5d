package device

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

var ErrInvalidAudioFile = errors.New("error while decoding audio file")

// --------------------------------------------------------------------------------
// FileAudioInputDevice

// Define an AudioSourceDevice that reads a .WAV file and sends it as PCMFrames of fixed duration.
//
// Files are decoded as a whole when opened. Every frame sent is freshly allocated,
// so downstream devices may keep them.
type FileAudioInputDevice struct {
	logger *slog.Logger
	uuid   uuid.UUID

	shutdownOnce sync.Once

	properties      audiodevice.DeviceProperties
	samples         frame.PCMFrame
	frameDuration   time.Duration
	samplesPerFrame int
	sinkStream      chan frame.PCMFrame
}

// Make a new FileAudioInputDevice from a .WAV file (on the audioFilePath).
//
// The sample rate and channels are determined by the file,
// the duration of each frame by the frameDuration parameter.
// If no logger is given, slog.Default() is used.
func NewFileAudioInputDevice(
	audioFilePath string,
	frameDuration time.Duration,
	logger *slog.Logger,
) (*FileAudioInputDevice, error) {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	logger = logger.With(
		"file input device uuid", id,
	)

	f, err := os.Open(audioFilePath)
	if err != nil {
		logger.Error(
			"could not open audio file",
			"audioFile", audioFilePath,
			"err", err,
		)
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		logger.Error(
			"could not decode audio file",
			"audioFile", audioFilePath,
			"err", decoder.Err(),
		)
		return nil, ErrInvalidAudioFile
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		logger.Error(
			"could not get full PCM buffer from audio file",
			"audioFile", audioFilePath,
			"err", err,
		)
		return nil, err
	}

	properties := audiodevice.DeviceProperties{
		SampleRate:  int(decoder.SampleRate),
		NumChannels: int(decoder.NumChans),
	}
	samplesPerFrame := int(float64(properties.NumChannels) * float64(properties.SampleRate) *
		float64(frameDuration) / float64(time.Second))
	if samplesPerFrame <= 0 || samplesPerFrame%properties.NumChannels != 0 {
		logger.Error(
			"invalid samples per frame during opening of file audio input",
			"audioFile", audioFilePath,
			"sampleRate", properties.SampleRate,
			"channels", properties.NumChannels,
			"samplesPerFrame", samplesPerFrame,
		)
		return nil, errors.New("invalid samples per frame")
	}

	// Integer samples of any bit depth scale to [-1, 1).
	scale := float32(int(1) << (int(decoder.BitDepth) - 1))
	samples := make(frame.PCMFrame, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}

	logger.Debug(
		"loaded audio file",
		"audioFile", audioFilePath,
		"sampleRate", properties.SampleRate,
		"channels", properties.NumChannels,
		"bitDepth", decoder.BitDepth,
		"samplesPerFrame", samplesPerFrame,
	)

	return &FileAudioInputDevice{
		logger:          logger,
		uuid:            id,
		properties:      properties,
		samples:         samples,
		frameDuration:   frameDuration,
		samplesPerFrame: samplesPerFrame,
		sinkStream:      make(chan frame.PCMFrame),
	}, nil
}

// Play the audio file in real time, one frame per frameDuration.
// The stream is closed when the file ends or the context is canceled.
func (d *FileAudioInputDevice) Play(ctx context.Context) {
	d.logger.Debug("playing audio")
	go func() {
		defer d.Close()

		ticker := time.NewTicker(d.frameDuration)
		defer ticker.Stop()
		for frameStart := 0; frameStart < len(d.samples); frameStart += d.samplesPerFrame {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			if !d.send(ctx, d.nextFrame(frameStart)) {
				return
			}
		}
		d.logger.Debug("finished playing")
	}()
}

// Send the whole audio file as fast as the stream is consumed.
// The stream is closed when the file ends or the context is canceled.
func (d *FileAudioInputDevice) Drain(ctx context.Context) {
	d.logger.Debug("draining audio")
	go func() {
		defer d.Close()

		for frameStart := 0; frameStart < len(d.samples); frameStart += d.samplesPerFrame {
			if !d.send(ctx, d.nextFrame(frameStart)) {
				return
			}
		}
		d.logger.Debug("finished draining")
	}()
}

func (d *FileAudioInputDevice) nextFrame(frameStart int) frame.PCMFrame {
	frameEnd := min(frameStart+d.samplesPerFrame, len(d.samples))
	f := make(frame.PCMFrame, frameEnd-frameStart)
	copy(f, d.samples[frameStart:frameEnd])
	return f
}

func (d *FileAudioInputDevice) send(ctx context.Context, f frame.PCMFrame) bool {
	select {
	case d.sinkStream <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *FileAudioInputDevice) Close() {
	d.logger.Debug("shutdown called")
	d.shutdownOnce.Do(func() {
		close(d.sinkStream)
	})
}

func (d *FileAudioInputDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkStream
}

func (d *FileAudioInputDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}

// Duration of the whole file.
func (d *FileAudioInputDevice) Duration() time.Duration {
	frames := len(d.samples) / d.properties.NumChannels
	return time.Duration(frames) * time.Second / time.Duration(d.properties.SampleRate)
}
