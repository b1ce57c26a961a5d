package codec

import (
	"fmt"
	"strings"
)

// Format enumerates the file formats a recording can be stored in.
//
// The numeric values are persisted in config files, so never reorder them.
type Format int

const (
	FormatWAV Format = iota
	FormatVorbis
	FormatAU
	FormatFLAC
	formatEnd
)

// All formats in enumeration order, available or not.
func Formats() []Format {
	formats := make([]Format, 0, int(formatEnd))
	for f := FormatWAV; f < formatEnd; f++ {
		formats = append(formats, f)
	}
	return formats
}

// Returns a human readable description of the format.
func (f Format) Description() string {
	switch f {
	case FormatWAV:
		return ".wav - Uncompressed"
	case FormatVorbis:
		return ".ogg (Vorbis) - Compressed"
	case FormatAU:
		return ".au - Uncompressed"
	case FormatFLAC:
		return ".flac - Lossless compressed"
	}
	return ""
}

// Returns the default file extension for the format, without a leading dot.
func (f Format) DefaultExtension() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatVorbis:
		return "ogg"
	case FormatAU:
		return "au"
	case FormatFLAC:
		return "flac"
	}
	return ""
}

// Reports whether streams of this format can be opened by FileWriter.
// There is no Vorbis encoder in this build.
func (f Format) Available() bool {
	switch f {
	case FormatWAV, FormatAU, FormatFLAC:
		return true
	}
	return false
}

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatVorbis:
		return "vorbis"
	case FormatAU:
		return "au"
	case FormatFLAC:
		return "flac"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Parse a format from its String (case-insensitive) or default extension,
// e.g. for reading the format out of a config file.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	for _, f := range Formats() {
		if s == f.String() || s == f.DefaultExtension() {
			return f, nil
		}
	}
	return FormatWAV, fmt.Errorf("unknown recording format %q", s)
}
