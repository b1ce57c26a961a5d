package encoderdecoder

import (
	"math"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

func sine(samples int, sampleRate int) frame.PCMFrame {
	f := make(frame.PCMFrame, samples)
	for i := range f {
		f[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return f
}

func TestEncoderDecoderTypeFromMimeType(t *testing.T) {
	assert.Equal(t, EncoderDecoderTypeOpus, EncoderDecoderTypeFromMimeType(webrtc.MimeTypeOpus))
	assert.Equal(t, EncoderDecoderTypeOpus, EncoderDecoderTypeFromMimeType("AUDIO/OPUS"))
	assert.Equal(t, EncoderDecoderTypePCMU, EncoderDecoderTypeFromMimeType(webrtc.MimeTypePCMU))
	assert.Equal(t, EncoderDecoderTypePCMA, EncoderDecoderTypeFromMimeType(webrtc.MimeTypePCMA))
	assert.Equal(t, EncoderDecoderTypeNotImplemented, EncoderDecoderTypeFromMimeType(webrtc.MimeTypeG722))
}

func TestNewEncoderDecoderNotImplemented(t *testing.T) {
	_, err := NewEncoderDecoder(EncoderDecoderTypeNotImplemented, 48000, 1)
	assert.ErrorIs(t, err, ErrEncoderDecoderTypeNotImplemented)
	_, err = NewEncoderDecoder("speex", 48000, 1)
	assert.ErrorIs(t, err, ErrEncoderDecoderTypeNotImplemented)
}

func TestNullEncoderDecoder(t *testing.T) {
	encdec, err := NewEncoderDecoder(EncoderDecoderTypeNull, 48000, 1)
	require.NoError(t, err)

	_, err = encdec.Encode(frame.PCMFrame{0})
	assert.ErrorIs(t, err, ErrNullEncoderDecoderUsed)
	_, err = encdec.Decode(frame.EncodedFrame{0})
	assert.ErrorIs(t, err, ErrNullEncoderDecoderUsed)
}

func TestG711RoundTrip(t *testing.T) {
	for _, id := range []EncoderDecoderTypeEnum{EncoderDecoderTypePCMU, EncoderDecoderTypePCMA} {
		t.Run(string(id), func(t *testing.T) {
			encdec, err := NewEncoderDecoder(id, 8000, 1)
			require.NoError(t, err)

			source := sine(160, 8000)
			encoded, err := encdec.Encode(source)
			require.NoError(t, err)
			assert.Len(t, encoded, 160)

			decoded, err := encdec.Decode(encoded)
			require.NoError(t, err)
			require.Len(t, decoded, 160)
			for i := range source {
				// The loudest segments are quantized in steps of 1024.
				assert.InDelta(t, source[i], decoded[i], 0.035, "sample %d", i)
			}
		})
	}
}

func TestG711RejectsPartialFrames(t *testing.T) {
	encdec, err := NewEncoderDecoder(EncoderDecoderTypePCMU, 8000, 2)
	require.NoError(t, err)

	_, err = encdec.Decode(frame.EncodedFrame{1, 2, 3})
	assert.Error(t, err)
}

func TestOpusRoundTrip(t *testing.T) {
	encdec, err := NewEncoderDecoder(EncoderDecoderTypeOpus, 48000, 1)
	require.NoError(t, err)

	// 20ms frames.
	for range 5 {
		encoded, err := encdec.Encode(sine(960, 48000))
		require.NoError(t, err)
		assert.NotEmpty(t, encoded)

		decoded, err := encdec.Decode(encoded)
		require.NoError(t, err)
		assert.Len(t, decoded, 960)
	}
}
