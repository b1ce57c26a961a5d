package device

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

var ErrMixerStarted = errors.New("mixer already started")

// --------------------------------------------------------------------------------
// MixerDevice (Many to One)

// A MixerDevice sums any number of source streams into a single stream.
//
// All sources must share the mixer's device properties. Sources are read in lockstep
// and mixed into frames of a fixed duration, clipped to [-1, 1]. A source that ends early
// contributes silence from then on. The mixed stream closes once every source has closed.
//
// Add every source with AddStream before calling Start.
type MixerDevice struct {
	logger *slog.Logger
	uuid   uuid.UUID

	properties      audiodevice.DeviceProperties
	samplesPerFrame int

	mu      sync.Mutex
	sources []<-chan frame.PCMFrame
	started bool

	ctx           context.Context
	ctxCancelFunc context.CancelFunc
	sinkStream    chan frame.PCMFrame
}

// Create a new MixerDevice emitting frames of frameDuration.
// If no logger is given, slog.Default() is used.
func NewMixerDevice(
	properties audiodevice.DeviceProperties,
	frameDuration time.Duration,
	logger *slog.Logger,
) *MixerDevice {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	samplesPerFrame := properties.NumChannels * max(1, int(int64(properties.SampleRate)*int64(frameDuration)/int64(time.Second)))

	ctx, ctxCancelFunc := context.WithCancel(context.Background())
	return &MixerDevice{
		logger: logger.With(
			"mixer device uuid", id,
		),
		uuid:            id,
		properties:      properties,
		samplesPerFrame: samplesPerFrame,
		ctx:             ctx,
		ctxCancelFunc:   ctxCancelFunc,
		sinkStream:      make(chan frame.PCMFrame),
	}
}

// --------------------------------------------------------------------------------
// AudioSinkDevice Interface

// Add a source stream to the mix. Streams added after Start are rejected.
func (d *MixerDevice) AddStream(sourceStream <-chan frame.PCMFrame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrMixerStarted
	}
	d.sources = append(d.sources, sourceStream)
	return nil
}

// Add a single source and start mixing, making a MixerDevice usable wherever an
// AudioSinkDevice is expected.
func (d *MixerDevice) SetStream(sourceStream <-chan frame.PCMFrame) {
	if err := d.AddStream(sourceStream); err != nil {
		d.logger.Error("stream set on running mixer", "err", err)
		return
	}
	d.Start()
}

// Start mixing the added sources.
func (d *MixerDevice) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	sources := d.sources
	d.mu.Unlock()

	d.logger.Debug("mixing", "sources", len(sources))
	go d.mix(sources)
}

func (d *MixerDevice) mix(sources []<-chan frame.PCMFrame) {
	defer close(d.sinkStream)

	pending := make([]frame.PCMFrame, len(sources))
	open := make([]bool, len(sources))
	for i := range open {
		open[i] = true
	}

	for {
		anyOpen := false
		for i, source := range sources {
			for open[i] && len(pending[i]) < d.samplesPerFrame {
				var f frame.PCMFrame
				var ok bool
				select {
				case f, ok = <-source:
				case <-d.ctx.Done():
					return
				}
				if !ok {
					open[i] = false
					break
				}
				pending[i] = append(pending[i], f...)
			}
			anyOpen = anyOpen || open[i]
		}

		mixed := make(frame.PCMFrame, d.samplesPerFrame)
		longest := 0
		for i := range pending {
			// Whole frames only, so channels stay aligned.
			n := min(d.samplesPerFrame, len(pending[i]))
			n -= n % d.properties.NumChannels
			for j, sample := range pending[i][:n] {
				mixed[j] += sample
			}
			pending[i] = pending[i][n:]
			// A closed source ending on a partial frame leaves less than one frame behind.
			if !open[i] && len(pending[i]) < d.properties.NumChannels {
				pending[i] = nil
			}
			longest = max(longest, n)
		}
		if longest == 0 {
			if !anyOpen {
				d.logger.Debug("all sources closed")
				return
			}
			continue
		}
		mixed = mixed[:longest]
		for j, sample := range mixed {
			mixed[j] = max(-1, min(1, sample))
		}

		select {
		case d.sinkStream <- mixed:
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *MixerDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}

// --------------------------------------------------------------------------------
// AudioSourceDevice Interface

func (d *MixerDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkStream
}

// Stop mixing and close the mixed stream. Sources are no longer read.
func (d *MixerDevice) Close() {
	d.logger.Debug("shutdown called")
	d.ctxCancelFunc()
	d.Start()
}
