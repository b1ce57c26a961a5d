package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/codec"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

// One recording, from Start to Stop. All fields are owned by the recorder goroutine.
type session struct {
	recorder *VoiceRecorder
	logger   *slog.Logger

	config    sessionConfig
	params    codec.StreamParameters
	startTime time.Time

	queue *bufferQueue
	slots map[uuid.UUID]*recordInfo

	// Zeroed samples reused for gap padding.
	silence frame.PCMFrame
}

func newSession(r *VoiceRecorder, config sessionConfig, startTime time.Time, queue *bufferQueue) *session {
	params := config.streamParameters()
	return &session{
		recorder:  r,
		logger:    r.logger,
		config:    config,
		params:    params,
		startTime: startTime,
		queue:     queue,
		slots:     make(map[uuid.UUID]*recordInfo),
		silence:   make(frame.PCMFrame, silenceChunkFrames*params.Channels),
	}
}

// The main loop of the recorder goroutine. Writes buffers until the queue is closed and
// drained, then finalizes every stream and closes done.
func (s *session) run(done chan<- struct{}) {
	defer close(done)

	for {
		buffers, ok := s.queue.popAll()
		if !ok {
			break
		}
		for _, b := range buffers {
			s.process(b)
		}
	}
	s.finalize()
}

// Align a buffer against its slot's watermark and write it.
func (s *session) process(b *recordBuffer) {
	ri, ok := s.slots[b.key]
	if !ok {
		ri = s.createSlot(b.speakerName)
		s.slots[b.key] = ri
	}
	if ri.failed {
		return
	}

	// Streams never rewind, so anything overlapping what is already written is discarded.
	if b.absoluteStartSample < ri.lastWrittenAbsoluteSample {
		ri.droppedFrames += uint64(b.sampleCount)
		s.logger.Debug(
			"dropping buffer behind watermark",
			"speaker", ri.displayName,
			"absoluteStartSample", b.absoluteStartSample,
			"lastWrittenAbsoluteSample", ri.lastWrittenAbsoluteSample,
			"sampleCount", b.sampleCount,
		)
		return
	}

	if gap := b.absoluteStartSample - ri.lastWrittenAbsoluteSample; gap > 0 {
		if err := ri.writeSilence(s.silence, s.params.Channels, gap); err != nil {
			s.failSlot(ri, err)
			return
		}
	}
	if err := ri.writeAudio(b.samples, b.sampleCount); err != nil {
		s.failSlot(ri, err)
	}
}

// Open the output stream for a new slot. On failure the slot is returned marked failed.
func (s *session) createSlot(speakerName string) *recordInfo {
	ri := &recordInfo{
		displayName:               speakerName,
		lastWrittenAbsoluteSample: s.config.firstSampleAbsolute,
	}

	path, err := ExpandTemplate(s.config.fileName, TemplateVars{
		UserName:  speakerName,
		Host:      s.config.host,
		StartTime: s.startTime,
	})
	if err != nil {
		ri.failed = true
		s.recorder.emitError(newError(Unspecified, err, "could not expand path template %q for %q", s.config.fileName, speakerName))
		return ri
	}
	if filepath.Ext(path) == "" {
		path += "." + s.config.format.DefaultExtension()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		ri.failed = true
		s.recorder.emitError(newError(CreateDirectoryFailed, err, "could not create directory %q for %q", dir, speakerName))
		return ri
	}

	path, err = uniquePath(path)
	if err != nil {
		ri.failed = true
		s.recorder.emitError(newError(CreateFileFailed, err, "could not find a free file name for %q", speakerName))
		return ri
	}

	stream, err := s.recorder.writer.Open(path, s.params)
	if err != nil {
		ri.failed = true
		s.recorder.emitError(newError(CreateFileFailed, err, "could not create file %q for %q", path, speakerName))
		return ri
	}

	ri.path = path
	ri.stream = stream
	s.logger.Info(
		"recording speaker",
		"speaker", speakerName,
		"audioFile", path,
	)
	return ri
}

// Give up on a slot after a write error. Its file is closed as far as it got.
func (s *session) failSlot(ri *recordInfo, err error) {
	ri.failed = true
	closeErr := ri.close()
	s.recorder.emitError(newError(Unspecified, errors.Join(err, closeErr), "could not write to %q for %q", ri.path, ri.displayName))
}

// Close every stream and forget all slots.
func (s *session) finalize() {
	for key, ri := range s.slots {
		if err := ri.close(); err != nil {
			s.recorder.emitError(newError(Unspecified, err, "could not finalize %q for %q", ri.path, ri.displayName))
		}
		s.logger.Debug(
			"finalized speaker",
			"speaker", ri.displayName,
			"audioFile", ri.path,
			"failed", ri.failed,
			"audioFrames", ri.audioFrames,
			"silenceFrames", ri.silenceFrames,
			"droppedFrames", ri.droppedFrames,
		)
		delete(s.slots, key)
	}
}

// Return path, or if it exists the first free "name (n).ext" next to it.
func uniquePath(path string) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	candidate := path
	for n := 1; ; n++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s (%d)%s", base, n, ext)
	}
}
