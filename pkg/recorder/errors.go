package recorder

import (
	"errors"
	"fmt"
)

// Possible error conditions inside the recorder.
type ErrorKind int

const (
	Unspecified ErrorKind = iota
	CreateDirectoryFailed
	CreateFileFailed
	InvalidSampleRate
)

func (k ErrorKind) String() string {
	switch k {
	case Unspecified:
		return "unspecified"
	case CreateDirectoryFailed:
		return "create directory failed"
	case CreateFileFailed:
		return "create file failed"
	case InvalidSampleRate:
		return "invalid sample rate"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

var (
	ErrRecordingActive = errors.New("recorder configuration cannot change while recording")
	ErrNotRecording    = errors.New("recorder is not recording")
)

// Error is a recorder failure of a specific kind.
// It is returned from Start and delivered on the event channel.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errPartialWrite(written, requested int) error {
	return fmt.Errorf("partial write: %d of %d frames written", written, requested)
}
