package encoderdecoder

import (
	"errors"

	"gopkg.in/hraban/opus.v2"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

// Longest Opus frame is 120ms.
const maxOpusFrameDurationMs = 120

// Upper bound on the size of one encoded packet.
const maxOpusPacketBytes = 4000

type OpusEncoderDecoder struct {
	sampleRate  int
	numChannels int

	encoder *opus.Encoder
	decoder *opus.Decoder
}

func newOpusEncoderDecoder(sampleRate int, numChannels int) (*OpusEncoderDecoder, error) {
	encoder, errEnc := opus.NewEncoder(sampleRate, numChannels, opus.Application(opus.AppVoIP))
	decoder, errDec := opus.NewDecoder(sampleRate, numChannels)
	if err := errors.Join(errEnc, errDec); err != nil {
		return nil, err
	}

	return &OpusEncoderDecoder{
		sampleRate:  sampleRate,
		numChannels: numChannels,
		encoder:     encoder,
		decoder:     decoder,
	}, nil
}

// pcmData must hold exactly 2.5, 5, 10, 20, 40 or 60ms of audio.
func (encdec *OpusEncoderDecoder) Encode(pcmData frame.PCMFrame) (frame.EncodedFrame, error) {
	encodedFrame := make(frame.EncodedFrame, maxOpusPacketBytes)
	encodedBytes, err := encdec.encoder.EncodeFloat32(pcmData, encodedFrame)
	if err != nil {
		return nil, err
	}
	return encodedFrame[:encodedBytes], nil
}

func (encdec *OpusEncoderDecoder) Decode(encodedData frame.EncodedFrame) (frame.PCMFrame, error) {
	decodedFrame := make(frame.PCMFrame, encdec.sampleRate*maxOpusFrameDurationMs/1000*encdec.numChannels)
	decodedSamples, err := encdec.decoder.DecodeFloat32(encodedData, decodedFrame)
	if err != nil {
		return nil, err
	}
	return decodedFrame[:decodedSamples*encdec.numChannels], nil
}
