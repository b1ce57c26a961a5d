package recorder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/codec"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

// Lifecycle of a VoiceRecorder.
//
//	Idle -> Running -> Draining -> Stopped -> Running -> ...
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

const (
	DefaultSampleRate = 48000
	DefaultFileName   = "Recordings/%date/%time - %user"

	// Display names of the slots that do not belong to a remote speaker.
	LocalSpeakerName = "Local"
	MixdownName      = "Mixdown"
)

// Identity of the local speaker and of the mixdown slot.
var LocalSpeakerID = uuid.Nil

// A Speaker is anything that produces audio to be recorded into its own file.
//
// ID must stay the same for the lifetime of a recording: buffers are routed by ID,
// and the Name is only read when the speaker's file is created.
type Speaker struct {
	ID   uuid.UUID
	Name string
}

// BufferSink accepts timestamped audio. Implemented by VoiceRecorder.
type BufferSink interface {
	AddBuffer(speaker *Speaker, samples frame.PCMFrame, sampleCount int, absoluteStartSample uint64)
}

// Recording configuration. Frozen for the duration of a recording.
type sessionConfig struct {
	sampleRate          int
	format              codec.Format
	mixDown             bool
	mixDownChannels     int
	fileName            string
	host                string
	firstSampleAbsolute uint64
}

// VoiceRecorder records timestamped audio from any number of speakers to encoded files.
//
// Producers hand buffers to AddBuffer from any goroutine. A dedicated goroutine, started by
// Start and finished by Stop, pads every speaker's stream with silence up to the buffer's
// absolute sample position and writes it, so that all files share one timeline.
type VoiceRecorder struct {
	logger *slog.Logger
	uuid   uuid.UUID
	writer codec.Writer
	events chan Event

	// Injectable for testing; defaults to time.Now.
	now func() time.Time

	// Guards everything below. Never held while waiting for the recorder goroutine.
	mu        sync.RWMutex
	config    sessionConfig
	state     State
	startTime time.Time
	queue     *bufferQueue
	done      chan struct{}
}

// Create a new VoiceRecorder writing streams through writer.
// If no logger is given, slog.Default() is used.
func NewVoiceRecorder(writer codec.Writer, logger *slog.Logger) *VoiceRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	return &VoiceRecorder{
		logger: logger.With("recorder uuid", id),
		uuid:   id,
		writer: writer,
		events: make(chan Event, eventBufferSize),
		now:    time.Now,
		config: sessionConfig{
			sampleRate:      DefaultSampleRate,
			format:          codec.FormatWAV,
			mixDownChannels: 1,
			fileName:        DefaultFileName,
		},
	}
}

// Notifications about errors and the start and end of recordings.
// Events are dropped if the channel is not drained.
func (r *VoiceRecorder) Events() <-chan Event {
	return r.events
}

// The speaker to submit the local user's own audio as.
func (r *VoiceRecorder) LocalSpeaker() *Speaker {
	return &Speaker{ID: LocalSpeakerID, Name: LocalSpeakerName}
}

// --------------------------------------------------------------------------------
// Control

// Start a recording. Only valid while Idle or Stopped.
//
// A non-positive sample rate fails with an InvalidSampleRate *Error and the recorder stays put.
func (r *VoiceRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRunning || r.state == StateDraining {
		return ErrRecordingActive
	}

	config := r.config
	if config.sampleRate <= 0 {
		err := newError(InvalidSampleRate, nil, "sample rate %d is not positive", config.sampleRate)
		r.emitError(err)
		return err
	}
	if !config.format.Available() {
		err := newError(Unspecified, codec.ErrFormatUnavailable, "format %s cannot be recorded", config.format)
		r.emitError(err)
		return err
	}
	if config.mixDown && config.mixDownChannels <= 0 {
		err := newError(Unspecified, nil, "mixdown channel count %d is not positive", config.mixDownChannels)
		r.emitError(err)
		return err
	}

	r.startTime = r.now()
	r.queue = newBufferQueue()
	r.done = make(chan struct{})
	r.state = StateRunning

	s := newSession(r, config, r.startTime, r.queue)
	go s.run(r.done)

	r.logger.Info(
		"recording started",
		"sampleRate", config.sampleRate,
		"format", config.format.String(),
		"mixDown", config.mixDown,
		"fileName", config.fileName,
	)
	r.emit(Event{Type: EventRecordingStarted})
	return nil
}

// Stop the recording. Only valid while Running.
//
// Every buffer accepted before Stop is written, then all files are finalized.
// Stop blocks until that has happened.
func (r *VoiceRecorder) Stop() error {
	r.mu.Lock()
	if r.state != StateRunning {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.state = StateDraining
	queue, done := r.queue, r.done
	r.mu.Unlock()

	r.logger.Debug("draining recorder", "pendingBuffers", queue.len())
	queue.close()
	<-done

	r.mu.Lock()
	r.state = StateStopped
	r.queue = nil
	r.done = nil
	r.mu.Unlock()

	r.logger.Info("recording stopped")
	r.emit(Event{Type: EventRecordingStopped})
	return nil
}

// --------------------------------------------------------------------------------
// Ingestion

// Adds an audio buffer of sampleCount frames, the first of which is at absoluteStartSample.
//
// speaker may be nil for the local source. In mixdown mode all speakers share one file and
// each frame holds the configured number of mixdown channels, otherwise frames are mono.
//
// samples is shared with the recorder and must not be modified afterwards.
// Buffers that are malformed or arrive while not recording are dropped.
func (r *VoiceRecorder) AddBuffer(speaker *Speaker, samples frame.PCMFrame, sampleCount int, absoluteStartSample uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state != StateRunning {
		r.logger.Debug("dropping buffer, not recording", "state", r.state.String())
		return
	}

	channels := 1
	if r.config.mixDown {
		channels = r.config.mixDownChannels
	}
	if sampleCount <= 0 || sampleCount*channels > len(samples) {
		r.logger.Debug(
			"dropping malformed buffer",
			"sampleCount", sampleCount,
			"channels", channels,
			"samples", len(samples),
		)
		return
	}
	if absoluteStartSample < r.config.firstSampleAbsolute {
		r.logger.Debug(
			"dropping buffer from before the recording",
			"absoluteStartSample", absoluteStartSample,
			"firstSampleAbsolute", r.config.firstSampleAbsolute,
		)
		return
	}

	if speaker == nil {
		speaker = r.LocalSpeaker()
	}
	b := &recordBuffer{
		key:                 speaker.ID,
		speakerName:         speaker.Name,
		samples:             samples,
		sampleCount:         sampleCount,
		absoluteStartSample: absoluteStartSample,
	}
	if r.config.mixDown {
		b.key = LocalSpeakerID
		b.speakerName = MixdownName
	}

	if !r.queue.push(b) {
		r.logger.Debug("dropping buffer, recorder is draining")
	}
}

// --------------------------------------------------------------------------------
// Getters and Setters
// Setters fail with ErrRecordingActive while recording; values are validated by Start.

func (r *VoiceRecorder) setConfig(apply func(*sessionConfig)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRunning || r.state == StateDraining {
		return ErrRecordingActive
	}
	apply(&r.config)
	return nil
}

// Sets the sample rate of all recorded streams, in Hz.
func (r *VoiceRecorder) SetSampleRate(sampleRate int) error {
	return r.setConfig(func(c *sessionConfig) { c.sampleRate = sampleRate })
}

func (r *VoiceRecorder) SampleRate() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.sampleRate
}

// Sets the storage format for recordings.
func (r *VoiceRecorder) SetFormat(format codec.Format) error {
	return r.setConfig(func(c *sessionConfig) { c.format = format })
}

func (r *VoiceRecorder) Format() codec.Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.format
}

// Sets whether all speakers are recorded into a single, pre-mixed file.
func (r *VoiceRecorder) SetMixDown(mixDown bool) error {
	return r.setConfig(func(c *sessionConfig) { c.mixDown = mixDown })
}

func (r *VoiceRecorder) MixDown() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.mixDown
}

// Sets the number of interleaved channels in mixdown buffers.
func (r *VoiceRecorder) SetMixDownChannels(channels int) error {
	return r.setConfig(func(c *sessionConfig) { c.mixDownChannels = channels })
}

// Sets the path template for recordings, see TemplateVars for the placeholders.
func (r *VoiceRecorder) SetFileName(fileName string) error {
	return r.setConfig(func(c *sessionConfig) { c.fileName = fileName })
}

func (r *VoiceRecorder) FileName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.fileName
}

// Sets the host name substituted for %host.
func (r *VoiceRecorder) SetHost(host string) error {
	return r.setConfig(func(c *sessionConfig) { c.host = host })
}

// Sets the absolute sample number considered the first sample of the recording.
func (r *VoiceRecorder) SetFirstSampleAbsolute(firstSampleAbsolute uint64) error {
	return r.setConfig(func(c *sessionConfig) { c.firstSampleAbsolute = firstSampleAbsolute })
}

func (r *VoiceRecorder) FirstSampleAbsolute() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.firstSampleAbsolute
}

func (r *VoiceRecorder) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *VoiceRecorder) IsRecording() bool {
	state := r.State()
	return state == StateRunning || state == StateDraining
}

// Returns the time since the current recording started.
func (r *VoiceRecorder) ElapsedTime() (time.Duration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state != StateRunning && r.state != StateDraining {
		return 0, ErrNotRecording
	}
	return r.now().Sub(r.startTime), nil
}

// Returns the absolute sample number corresponding to now, for producers that
// timestamp audio by wall clock rather than by their own sample count.
func (r *VoiceRecorder) CurrentSample() (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state != StateRunning && r.state != StateDraining {
		return 0, ErrNotRecording
	}
	elapsed := max(r.now().Sub(r.startTime), 0)
	rate := uint64(r.config.sampleRate)
	// Whole seconds and the remainder apart, so nanoseconds times rate cannot overflow.
	seconds := uint64(elapsed / time.Second)
	remainder := uint64(elapsed % time.Second)
	return r.config.firstSampleAbsolute + seconds*rate + remainder*rate/uint64(time.Second), nil
}

// Parameters for opening a stream under the given configuration.
func (c sessionConfig) streamParameters() codec.StreamParameters {
	params := codec.StreamParameters{
		Format:     c.format,
		SampleRate: c.sampleRate,
		Channels:   1,
	}
	if c.mixDown {
		params.Channels = c.mixDownChannels
	}

	switch c.format {
	case codec.FormatWAV:
		params.BitDepth = 16
	case codec.FormatAU:
		params.BitDepth = 32
		params.Float = true
	case codec.FormatFLAC:
		params.BitDepth = 24
	}
	return params
}
