package encoderdecoder

import (
	"fmt"
	"math"

	"github.com/zaf/g711"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

type g711Law int

const (
	g711ULaw g711Law = iota
	g711ALaw
)

// G.711 companding of 16 bit PCM into one byte per sample, as used by the PCMU and PCMA codecs.
// The sample rate is fixed at 8kHz by the codec.
type G711EncoderDecoder struct {
	law         g711Law
	numChannels int
}

func newG711EncoderDecoder(law g711Law, numChannels int) (*G711EncoderDecoder, error) {
	if numChannels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", numChannels)
	}
	return &G711EncoderDecoder{law: law, numChannels: numChannels}, nil
}

func (encdec *G711EncoderDecoder) Encode(pcmData frame.PCMFrame) (frame.EncodedFrame, error) {
	encoded := make(frame.EncodedFrame, len(pcmData))
	for i, sample := range pcmData {
		sample = max(-1, min(1, sample))
		value := int16(sample * math.MaxInt16)
		if encdec.law == g711ALaw {
			encoded[i] = g711.EncodeAlawFrame(value)
		} else {
			encoded[i] = g711.EncodeUlawFrame(value)
		}
	}
	return encoded, nil
}

func (encdec *G711EncoderDecoder) Decode(encodedData frame.EncodedFrame) (frame.PCMFrame, error) {
	if len(encodedData)%encdec.numChannels != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %d channel frames", len(encodedData), encdec.numChannels)
	}
	decoded := make(frame.PCMFrame, len(encodedData))
	for i, b := range encodedData {
		var value int16
		if encdec.law == g711ALaw {
			value = g711.DecodeAlawFrame(b)
		} else {
			value = g711.DecodeUlawFrame(b)
		}
		decoded[i] = float32(value) / 32768
	}
	return decoded, nil
}
