package recorder

import (
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/codec"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

// Frames of silence written per call when padding a gap.
const silenceChunkFrames = 4096

// Stores the recording state for one speaker (or the single mixdown slot).
// Owned by the recorder goroutine; no other goroutine touches it.
type recordInfo struct {
	// Name of the speaker when the slot was created. Later renames do not apply.
	displayName string

	// Path of the output file, empty if the stream could not be opened.
	path string

	stream codec.Stream

	// Absolute sample number directly after the last frame written to stream.
	lastWrittenAbsoluteSample uint64

	// Frames of silence and audio written, for logging.
	silenceFrames uint64
	audioFrames   uint64
	droppedFrames uint64

	// A failed slot swallows all further buffers for the rest of the session.
	failed bool
}

// Write frames of silence to the stream, advancing the watermark as each chunk lands.
func (ri *recordInfo) writeSilence(silence frame.PCMFrame, channels int, frames uint64) error {
	chunkFrames := uint64(len(silence) / channels)
	for frames > 0 {
		n := min(frames, chunkFrames)
		written, err := ri.stream.WriteFrames(silence, int(n))
		ri.lastWrittenAbsoluteSample += uint64(written)
		ri.silenceFrames += uint64(written)
		if err != nil {
			return err
		}
		if uint64(written) != n {
			return errPartialWrite(written, int(n))
		}
		frames -= n
	}
	return nil
}

// Write a buffer of audio to the stream, advancing the watermark.
func (ri *recordInfo) writeAudio(samples frame.PCMFrame, frames int) error {
	written, err := ri.stream.WriteFrames(samples, frames)
	ri.lastWrittenAbsoluteSample += uint64(written)
	ri.audioFrames += uint64(written)
	if err != nil {
		return err
	}
	if written != frames {
		return errPartialWrite(written, frames)
	}
	return nil
}

// Close the stream, if any. The slot is unusable afterwards.
func (ri *recordInfo) close() error {
	if ri.stream == nil {
		return nil
	}
	err := ri.stream.Close()
	ri.stream = nil
	return err
}
