package codec

import (
	"errors"
	"fmt"
	"os"

	"github.com/mewkiz/flac"
	flacframe "github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

const (
	flacBlockSize = 4096
	flacBitDepth  = 24
)

// A FLAC stream of verbatim subframes, encoded by mewkiz/flac.
//
// Incoming frames are gathered into fixed size blocks, only the final block may be short.
// The STREAMINFO sample count and MD5 are rewritten by the encoder on close.
type flacStream struct {
	fileHandle *os.File
	encoder    *flac.Encoder
	header     flacframe.Header
	bitDepth   int

	// One pending block per channel, planar.
	pending    [][]int32
	numPending int
	blockNum   uint64
	closed     bool
}

func flacChannels(numChannels int) (flacframe.Channels, error) {
	switch numChannels {
	case 1:
		return flacframe.ChannelsMono, nil
	case 2:
		return flacframe.ChannelsLR, nil
	}
	return 0, fmt.Errorf("flac streams support 1 or 2 channels, got %d", numChannels)
}

func newFLACStream(f *os.File, params StreamParameters) (*flacStream, error) {
	channels, err := flacChannels(params.Channels)
	if err != nil {
		return nil, err
	}
	bitDepth := params.BitDepth
	if bitDepth != 16 && bitDepth != 24 {
		bitDepth = flacBitDepth
	}

	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(params.SampleRate),
		NChannels:     uint8(params.Channels),
		BitsPerSample: uint8(bitDepth),
	}
	encoder, err := flac.NewEncoder(f, info)
	if err != nil {
		return nil, err
	}

	pending := make([][]int32, params.Channels)
	for i := range pending {
		pending[i] = make([]int32, flacBlockSize)
	}
	return &flacStream{
		fileHandle: f,
		encoder:    encoder,
		header: flacframe.Header{
			HasFixedBlockSize: true,
			SampleRate:        uint32(params.SampleRate),
			Channels:          channels,
			BitsPerSample:     uint8(bitDepth),
		},
		bitDepth: bitDepth,
		pending:  pending,
	}, nil
}

func (s *flacStream) WriteFrames(samples frame.PCMFrame, frames int) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	numChannels := len(s.pending)
	samples, err := framesToWrite(samples, frames, numChannels)
	if err != nil {
		return 0, err
	}

	for i := 0; i < frames; i++ {
		for c := range numChannels {
			s.pending[c][s.numPending] = int32(quantize(samples[i*numChannels+c], s.bitDepth))
		}
		s.numPending++
		if s.numPending == flacBlockSize {
			if err := s.flushBlock(); err != nil {
				return i + 1, err
			}
		}
	}
	return frames, nil
}

// Encode the pending samples as one FLAC frame.
func (s *flacStream) flushBlock() error {
	if s.numPending == 0 {
		return nil
	}
	header := s.header
	header.BlockSize = uint16(s.numPending)
	header.Num = s.blockNum

	subframes := make([]*flacframe.Subframe, len(s.pending))
	for c := range s.pending {
		subframes[c] = &flacframe.Subframe{
			SubHeader: flacframe.SubHeader{Pred: flacframe.PredVerbatim},
			Samples:   s.pending[c][:s.numPending],
			NSamples:  s.numPending,
		}
	}

	err := s.encoder.WriteFrame(&flacframe.Frame{Header: header, Subframes: subframes})
	s.numPending = 0
	s.blockNum++
	return err
}

func (s *flacStream) Close() error {
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true

	flushErr := s.flushBlock()
	encoderErr := s.encoder.Close()
	return errors.Join(flushErr, encoderErr, closeFile(s.fileHandle))
}
