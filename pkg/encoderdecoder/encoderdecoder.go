package encoderdecoder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

type EncoderDecoderTypeEnum string

var (
	EncoderDecoderTypeNotImplemented EncoderDecoderTypeEnum = "not implemented"
	EncoderDecoderTypeNull           EncoderDecoderTypeEnum = "null"
	EncoderDecoderTypeOpus           EncoderDecoderTypeEnum = "opus"
	EncoderDecoderTypePCMU           EncoderDecoderTypeEnum = "pcmu"
	EncoderDecoderTypePCMA           EncoderDecoderTypeEnum = "pcma"
)

var (
	ErrEncoderDecoderTypeNotImplemented = errors.New("specified encoderdecoder type is not implemented")
)

// Audio encoder/decoder interface.
// Used to encode raw PCM Frames to an encoded frame,
// and decode those frames back to PCM frames.
//
// Returned frames are newly allocated and owned by the caller.
type EncoderDecoder interface {
	Encode(pcmData frame.PCMFrame) (frame.EncodedFrame, error)
	Decode(encodedData frame.EncodedFrame) (frame.PCMFrame, error)
}

// Map the mime type of a negotiated WebRTC codec to an EncoderDecoderTypeEnum.
func EncoderDecoderTypeFromMimeType(mimeType string) EncoderDecoderTypeEnum {
	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeOpus):
		return EncoderDecoderTypeOpus
	case strings.EqualFold(mimeType, webrtc.MimeTypePCMU):
		return EncoderDecoderTypePCMU
	case strings.EqualFold(mimeType, webrtc.MimeTypePCMA):
		return EncoderDecoderTypePCMA
	}
	return EncoderDecoderTypeNotImplemented
}

// Create a new encoder/decoder based on the negotiated codec.
// If something goes wrong during creation of an encoder/decoder
// (e.g. the type does not have an implementation) then a nil EncoderDecoder
// and an error is returned.
func NewEncoderDecoder(
	encoderdecoderID EncoderDecoderTypeEnum,
	sampleRate int,
	numChannels int,
) (EncoderDecoder, error) {
	switch encoderdecoderID {
	case EncoderDecoderTypeNull:
		return NullEncoderDecoder{}, nil
	case EncoderDecoderTypeOpus:
		return newOpusEncoderDecoder(sampleRate, numChannels)
	case EncoderDecoderTypePCMU:
		return newG711EncoderDecoder(g711ULaw, numChannels)
	case EncoderDecoderTypePCMA:
		return newG711EncoderDecoder(g711ALaw, numChannels)
	}
	return nil, fmt.Errorf("%w: %s", ErrEncoderDecoderTypeNotImplemented, encoderdecoderID)
}
