package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormats(t *testing.T) {
	assert.Equal(t, []Format{FormatWAV, FormatVorbis, FormatAU, FormatFLAC}, Formats())

	for _, f := range Formats() {
		assert.NotEmpty(t, f.Description(), f.String())
		assert.NotEmpty(t, f.DefaultExtension(), f.String())
	}
	assert.Equal(t, "", Format(42).Description())
	assert.Equal(t, "", Format(42).DefaultExtension())
}

func TestFormatAvailability(t *testing.T) {
	assert.True(t, FormatWAV.Available())
	assert.True(t, FormatAU.Available())
	assert.True(t, FormatFLAC.Available())
	assert.False(t, FormatVorbis.Available())
	assert.False(t, Format(-1).Available())
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"wav":    FormatWAV,
		"WAV":    FormatWAV,
		".flac":  FormatFLAC,
		"vorbis": FormatVorbis,
		"ogg":    FormatVorbis,
		" au ":   FormatAU,
	}
	for input, expected := range cases {
		f, err := ParseFormat(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, f, input)
	}

	_, err := ParseFormat("mp3")
	assert.Error(t, err)
}
