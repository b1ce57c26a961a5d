package codec

import (
	"errors"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

const wavFormatPCM = 1

// A WAV stream of integer PCM, encoded by go-audio/wav.
// The RIFF header sizes are only valid once the stream is closed.
type wavStream struct {
	fileHandle *os.File
	encoder    *wav.Encoder
	bufFormat  *goaudio.Format
	bitDepth   int
	frames     int
	closed     bool
}

func newWAVStream(f *os.File, params StreamParameters) (*wavStream, error) {
	bitDepth := params.BitDepth
	if bitDepth != 8 && bitDepth != 24 && bitDepth != 32 {
		bitDepth = 16
	}
	return &wavStream{
		fileHandle: f,
		encoder:    wav.NewEncoder(f, params.SampleRate, bitDepth, params.Channels, wavFormatPCM),
		bufFormat: &goaudio.Format{
			SampleRate:  params.SampleRate,
			NumChannels: params.Channels,
		},
		bitDepth: bitDepth,
	}, nil
}

func (s *wavStream) WriteFrames(samples frame.PCMFrame, frames int) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	samples, err := framesToWrite(samples, frames, s.bufFormat.NumChannels)
	if err != nil {
		return 0, err
	}

	buf := &goaudio.IntBuffer{
		Format:         s.bufFormat,
		Data:           make([]int, len(samples)),
		SourceBitDepth: s.bitDepth,
	}
	for i, sample := range samples {
		buf.Data[i] = quantize(sample, s.bitDepth)
	}
	if err := s.encoder.Write(buf); err != nil {
		return 0, err
	}
	s.frames += frames
	return frames, nil
}

func (s *wavStream) Close() error {
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true

	var headerErr error
	if s.frames == 0 {
		// The encoder writes its header lazily, so an empty recording still needs one write.
		headerErr = s.encoder.Write(&goaudio.IntBuffer{Format: s.bufFormat, SourceBitDepth: s.bitDepth})
	}
	encoderErr := s.encoder.Close()
	syncErr := s.fileHandle.Sync()
	return errors.Join(headerErr, encoderErr, syncErr, closeFile(s.fileHandle))
}
