package networking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/oov/audio/resampler"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/encoderdecoder"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/recorder"
)

// Source of RTP packets, satisfied by *webrtc.TrackRemote.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Sample rates an Opus decoder can produce directly.
var opusDecodeRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

type TrackRecorderConfig struct {
	Speaker *recorder.Speaker

	// The negotiated codec of the track.
	Codec webrtc.RTPCodecCapability

	// Sample rate and channel count the recorder expects.
	SampleRate     int
	OutputChannels int

	// Returns the recorder's current absolute sample. Read once, when the first packet arrives.
	Clock func() (uint64, error)
}

// TrackRecorder decodes one remote audio track and submits it to a recorder.
//
// The first packet is placed at the recorder's current position. Later packets follow
// back to back, unless their RTP timestamp shows a gap of at least half a packet
// (lost packets, discontinuous transmission), which is then left for the recorder to fill
// with silence. Packets arriving out of order are dropped.
type TrackRecorder struct {
	logger *slog.Logger
	uuid   uuid.UUID

	reader  RTPReader
	sink    recorder.BufferSink
	config  TrackRecorderConfig
	decoder encoderdecoder.EncoderDecoder

	decodeRate     int
	decodeChannels int
	resampler      *resampler.Resampler

	started       bool
	anchor        uint64
	lastTimestamp uint32
	rtpElapsed    uint64
	nextSample    uint64
}

// Create a new TrackRecorder reading from reader.
// If no logger is given, slog.Default() is used.
func NewTrackRecorder(
	reader RTPReader,
	sink recorder.BufferSink,
	config TrackRecorderConfig,
	logger *slog.Logger,
) (*TrackRecorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.SampleRate <= 0 || config.OutputChannels <= 0 || config.Codec.ClockRate == 0 {
		return nil, fmt.Errorf("invalid track recorder config: sample rate %d, channels %d, clock rate %d",
			config.SampleRate, config.OutputChannels, config.Codec.ClockRate)
	}
	id := uuid.New()
	logger = logger.With(
		"track recorder uuid", id,
		"speaker", config.Speaker.Name,
		"codec", config.Codec.MimeType,
	)

	encoderdecoderType := encoderdecoder.EncoderDecoderTypeFromMimeType(config.Codec.MimeType)
	decodeRate := int(config.Codec.ClockRate)
	if encoderdecoderType == encoderdecoder.EncoderDecoderTypeOpus && opusDecodeRates[config.SampleRate] {
		decodeRate = config.SampleRate
	}
	decodeChannels := max(int(config.Codec.Channels), 1)

	decoder, err := encoderdecoder.NewEncoderDecoder(encoderdecoderType, decodeRate, decodeChannels)
	if err != nil {
		logger.Error(
			"could not create decoder",
			"err", err,
		)
		return nil, err
	}

	t := &TrackRecorder{
		logger:         logger,
		uuid:           id,
		reader:         reader,
		sink:           sink,
		config:         config,
		decoder:        decoder,
		decodeRate:     decodeRate,
		decodeChannels: decodeChannels,
	}
	if decodeRate != config.SampleRate {
		logger.Debug(
			"adding resampler",
			"decodeRate", decodeRate,
			"sampleRate", config.SampleRate,
		)
		t.resampler = resampler.New(1, decodeRate, config.SampleRate, resampleQuality)
	}
	return t, nil
}

const resampleQuality = 10

// Record the track until it ends or ctx is canceled.
// The end of the track is not an error.
func (t *TrackRecorder) Run(ctx context.Context) error {
	t.logger.Debug("recording track")
	var packets, dropped int
	defer func() {
		t.logger.Debug(
			"track recording finished",
			"packets", packets,
			"dropped", dropped,
		)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		packet, _, err := t.reader.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			t.logger.Error(
				"error while reading rtp packet",
				"err", err,
			)
			return err
		}
		packets++

		if !t.handlePacket(packet) {
			dropped++
		}
	}
}

// Decode a packet and submit it. Returns false if the packet was dropped.
func (t *TrackRecorder) handlePacket(packet *rtp.Packet) bool {
	if len(packet.Payload) == 0 {
		return false
	}

	if !t.started {
		anchor, err := t.config.Clock()
		if err != nil {
			t.logger.Debug("not recording, dropping packet", "err", err)
			return false
		}
		t.started = true
		t.anchor = anchor
		t.nextSample = anchor
		t.lastTimestamp = packet.Timestamp
	} else {
		delta := int32(packet.Timestamp - t.lastTimestamp)
		if delta <= 0 {
			t.logger.Debug(
				"dropping out of order packet",
				"sequenceNumber", packet.SequenceNumber,
				"timestamp", packet.Timestamp,
			)
			return false
		}
		t.rtpElapsed += uint64(delta)
		t.lastTimestamp = packet.Timestamp
	}

	decoded, err := t.decoder.Decode(packet.Payload)
	if err != nil {
		t.logger.Warn(
			"could not decode packet",
			"sequenceNumber", packet.SequenceNumber,
			"err", err,
		)
		return false
	}

	samples := t.convert(decoded)
	frames := len(samples) / t.config.OutputChannels
	if frames == 0 {
		return false
	}

	position := t.anchor + t.rtpElapsed*uint64(t.config.SampleRate)/uint64(t.config.Codec.ClockRate)
	start := t.nextSample
	if position >= t.nextSample+uint64(frames)/2 {
		start = position
	}
	t.sink.AddBuffer(t.config.Speaker, samples, frames, start)
	t.nextSample = start + uint64(frames)
	return true
}

// Bring decoded audio to the recorder's sample rate and channel layout.
func (t *TrackRecorder) convert(decoded frame.PCMFrame) frame.PCMFrame {
	mono := decoded
	if t.decodeChannels > 1 {
		mono = make(frame.PCMFrame, len(decoded)/t.decodeChannels)
		for i := range mono {
			var sum float32
			for c := range t.decodeChannels {
				sum += decoded[i*t.decodeChannels+c]
			}
			mono[i] = sum / float32(t.decodeChannels)
		}
	}

	if t.resampler != nil {
		out := make(frame.PCMFrame, len(mono)*t.config.SampleRate/t.decodeRate+64)
		_, written := t.resampler.ProcessFloat32(0, mono, out)
		mono = out[:written]
	}

	if t.config.OutputChannels == 1 {
		return mono
	}
	out := make(frame.PCMFrame, len(mono)*t.config.OutputChannels)
	for i, v := range mono {
		for c := range t.config.OutputChannels {
			out[i*t.config.OutputChannels+c] = v
		}
	}
	return out
}
