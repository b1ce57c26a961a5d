package encoderdecoder

import (
	"errors"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

var (
	ErrNullEncoderDecoderUsed = errors.New("null encoder decoder used")
)

// An encoder decoder that does NO ENCODING/DECODING.
// Instead, an error is *always* returned, so frames of an unsupported codec are
// discarded rather than recorded as noise.
type NullEncoderDecoder struct{}

func (encdec NullEncoderDecoder) Encode(_ frame.PCMFrame) (frame.EncodedFrame, error) {
	return nil, ErrNullEncoderDecoderUsed
}

func (encdec NullEncoderDecoder) Decode(_ frame.EncodedFrame) (frame.PCMFrame, error) {
	return nil, ErrNullEncoderDecoderUsed
}
