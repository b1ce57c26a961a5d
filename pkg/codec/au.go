package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

// Sun/NeXT AU constants. All header fields are big-endian.
const (
	auMagic          = 0x2e736e64 // ".snd"
	auHeaderSize     = 24
	auUnknownSize    = 0xffffffff
	auEncodingPCM16  = 3
	auEncodingFloat  = 6
	auDataSizeOffset = 8
)

// An AU stream of 32 bit float or 16 bit integer samples.
// The data size field is written as "unknown" and patched on close.
type auStream struct {
	fileHandle *os.File
	writer     *bufio.Writer
	channels   int
	float      bool
	dataBytes  uint64
	closed     bool
}

func newAUStream(f *os.File, params StreamParameters) (*auStream, error) {
	encoding := uint32(auEncodingPCM16)
	if params.Float {
		encoding = auEncodingFloat
	}

	header := [6]uint32{
		auMagic,
		auHeaderSize,
		auUnknownSize,
		encoding,
		uint32(params.SampleRate),
		uint32(params.Channels),
	}
	if err := binary.Write(f, binary.BigEndian, header); err != nil {
		return nil, err
	}

	return &auStream{
		fileHandle: f,
		writer:     bufio.NewWriter(f),
		channels:   params.Channels,
		float:      params.Float,
	}, nil
}

func (s *auStream) WriteFrames(samples frame.PCMFrame, frames int) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	samples, err := framesToWrite(samples, frames, s.channels)
	if err != nil {
		return 0, err
	}

	var scratch [4]byte
	for _, sample := range samples {
		var b []byte
		if s.float {
			binary.BigEndian.PutUint32(scratch[:], math.Float32bits(sample))
			b = scratch[:4]
		} else {
			binary.BigEndian.PutUint16(scratch[:], uint16(int16(quantize(sample, 16))))
			b = scratch[:2]
		}
		if _, err := s.writer.Write(b); err != nil {
			return 0, err
		}
		s.dataBytes += uint64(len(b))
	}
	return frames, nil
}

func (s *auStream) Close() error {
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true

	err := s.writer.Flush()
	if err == nil && s.dataBytes < auUnknownSize {
		if _, err = s.fileHandle.Seek(auDataSizeOffset, io.SeekStart); err == nil {
			err = binary.Write(s.fileHandle, binary.BigEndian, uint32(s.dataBytes))
		}
	}
	return errors.Join(err, s.fileHandle.Sync(), closeFile(s.fileHandle))
}
