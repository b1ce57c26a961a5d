package codec

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

var (
	ErrFormatUnavailable = errors.New("recording format is not available in this build")
	ErrStreamClosed      = errors.New("stream already closed")
)

// Everything needed to open an encoded stream.
type StreamParameters struct {
	Format     Format
	SampleRate int

	// Number of interleaved channels in each frame.
	Channels int

	// Bit depth of the stored samples. Ignored where the format fixes it.
	BitDepth int

	// Store samples as IEEE floats rather than integers.
	Float bool
}

func (p StreamParameters) validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", p.SampleRate)
	}
	if p.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", p.Channels)
	}
	return nil
}

// Writer opens encoded audio streams. It is the only way the recorder touches
// the filesystem for audio data.
type Writer interface {
	Open(path string, params StreamParameters) (Stream, error)
}

// Stream is one open, encoded output file.
//
// Streams are not safe for concurrent use; the recorder writes each stream
// from a single goroutine.
type Stream interface {
	// Write the first frames frames of samples (frames * Channels values).
	// Returns the number of frames actually written.
	WriteFrames(samples frame.PCMFrame, frames int) (int, error)

	// Flush, finalize headers, and close the underlying file.
	Close() error
}

// FileWriter creates streams on the local filesystem, choosing the encoder by format.
type FileWriter struct {
	logger *slog.Logger
}

// Create a new FileWriter. If no logger is given, slog.Default() is used.
func NewFileWriter(logger *slog.Logger) *FileWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWriter{logger: logger}
}

func (w *FileWriter) Open(path string, params StreamParameters) (Stream, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if !params.Format.Available() {
		return nil, fmt.Errorf("%w: %s", ErrFormatUnavailable, params.Format)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		w.logger.Error(
			"could not create audio file",
			"audioFile", path,
			"err", err,
		)
		return nil, err
	}

	var stream Stream
	switch params.Format {
	case FormatWAV:
		stream, err = newWAVStream(f, params)
	case FormatAU:
		stream, err = newAUStream(f, params)
	case FormatFLAC:
		stream, err = newFLACStream(f, params)
	}
	if err != nil {
		f.Close()
		os.Remove(path)
		w.logger.Error(
			"could not initialize encoder",
			"audioFile", path,
			"format", params.Format.String(),
			"err", err,
		)
		return nil, err
	}

	w.logger.Debug(
		"opened audio file",
		"audioFile", path,
		"format", params.Format.String(),
		"sampleRate", params.SampleRate,
		"channels", params.Channels,
	)
	return stream, nil
}

// --------------------------------------------------------------------------------

// Check a write request against the samples provided, returning the samples to encode.
func framesToWrite(samples frame.PCMFrame, frames int, channels int) (frame.PCMFrame, error) {
	if frames < 0 || frames*channels > len(samples) {
		return nil, fmt.Errorf("cannot write %d frames of %d channels from %d samples", frames, channels, len(samples))
	}
	return samples[:frames*channels], nil
}

// Scale a float sample to a signed integer of the given bit depth, clipping out of range values.
func quantize(sample float32, bitDepth int) int {
	maxValue := float32(int(1)<<(bitDepth-1) - 1)
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	return int(sample * maxValue)
}

// Close f, tolerating an encoder that already closed it.
func closeFile(f *os.File) error {
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
