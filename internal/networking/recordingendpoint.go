package networking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/recorder"
)

var ErrEndpointClosed = errors.New("recording endpoint closed")

// RecordingEndpoint answers WebRTC session offers and records the audio every peer sends.
//
// The general flow of connections is as follows:
//
//  1. A peer creates a webrtc.PeerConnection with an outgoing audio track and POSTs a SignallingOffer
//     (its identity and SDP offer) as JSON to /signal.
//
//  2. The endpoint creates an answering webrtc.PeerConnection, waits for ICE gathering to complete,
//     and responds with its SDP answer.
//
//  3. When the peer's audio track arrives, a TrackRecorder submits its audio to the recorder
//     as the peer's speaker.
//
// Only the first audio track of each connection is recorded.
type RecordingEndpoint struct {
	logger *slog.Logger

	api                     *webrtc.API
	connectionConfiguration webrtc.Configuration

	sink           recorder.BufferSink
	clock          func() (uint64, error)
	sampleRate     int
	outputChannels int

	incomingSDPOfferServer *http.ServeMux

	ctx           context.Context
	ctxCancelFunc context.CancelFunc
	tracks        errgroup.Group

	mu              sync.Mutex
	peerConnections map[*webrtc.PeerConnection]struct{}
	closed          bool
}

// Create a new RecordingEndpoint submitting audio to sink.
//
// clock reports the recorder's current absolute sample, see recorder.VoiceRecorder.CurrentSample.
// Audio is submitted at sampleRate with outputChannels interleaved channels.
// If no logger is given, slog.Default() is used.
func NewRecordingEndpoint(
	api *webrtc.API,
	connectionConfiguration webrtc.Configuration,
	sink recorder.BufferSink,
	clock func() (uint64, error),
	sampleRate int,
	outputChannels int,
	logger *slog.Logger,
) *RecordingEndpoint {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, ctxCancelFunc := context.WithCancel(context.Background())
	endpoint := &RecordingEndpoint{
		logger:                  logger,
		api:                     api,
		connectionConfiguration: connectionConfiguration,
		sink:                    sink,
		clock:                   clock,
		sampleRate:              sampleRate,
		outputChannels:          outputChannels,
		incomingSDPOfferServer:  http.NewServeMux(),
		ctx:                     ctx,
		ctxCancelFunc:           ctxCancelFunc,
		peerConnections:         make(map[*webrtc.PeerConnection]struct{}),
	}
	endpoint.incomingSDPOfferServer.HandleFunc("POST /signal", endpoint.listenIncomingSessionOffers)
	return endpoint
}

func (endpoint *RecordingEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	endpoint.incomingSDPOfferServer.ServeHTTP(w, r)
}

// Close every peer connection and wait for their tracks to finish recording.
func (endpoint *RecordingEndpoint) Close() error {
	endpoint.mu.Lock()
	endpoint.closed = true
	peerConnections := make([]*webrtc.PeerConnection, 0, len(endpoint.peerConnections))
	for pc := range endpoint.peerConnections {
		peerConnections = append(peerConnections, pc)
	}
	endpoint.mu.Unlock()

	endpoint.ctxCancelFunc()
	var errs []error
	for _, pc := range peerConnections {
		errs = append(errs, pc.Close())
	}
	errs = append(errs, endpoint.tracks.Wait())
	return errors.Join(errs...)
}

// Number of open peer connections.
func (endpoint *RecordingEndpoint) NumPeerConnections() int {
	endpoint.mu.Lock()
	defer endpoint.mu.Unlock()
	return len(endpoint.peerConnections)
}

func (endpoint *RecordingEndpoint) addPeerConnection(pc *webrtc.PeerConnection) error {
	endpoint.mu.Lock()
	defer endpoint.mu.Unlock()
	if endpoint.closed {
		return ErrEndpointClosed
	}
	endpoint.peerConnections[pc] = struct{}{}
	return nil
}

func (endpoint *RecordingEndpoint) removePeerConnection(pc *webrtc.PeerConnection) {
	endpoint.mu.Lock()
	defer endpoint.mu.Unlock()
	delete(endpoint.peerConnections, pc)
}

// Answer an SDP offer received over HTTP.
//
// When a new offer is received, this method starts a new answering webrtc.PeerConnection,
// waits for ICE gathering to finish, and replies with the answer.
func (endpoint *RecordingEndpoint) listenIncomingSessionOffers(w http.ResponseWriter, r *http.Request) {
	requestLogger := endpoint.logger.WithGroup("request").With(
		"requestUUID", uuid.New().String(),
	)
	requestLogger.Debug("new incoming session offer")

	var signallingOffer SignallingOffer
	if err := json.NewDecoder(r.Body).Decode(&signallingOffer); err != nil {
		requestLogger.Error(
			"error while decoding new session offer from JSON",
			"err", err,
		)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	speaker := &recorder.Speaker{
		ID:   signallingOffer.PeerIdentifier.Uuid,
		Name: signallingOffer.PeerIdentifier.Name,
	}
	if speaker.ID == uuid.Nil {
		// Nil is the local speaker.
		speaker.ID = uuid.New()
	}
	if speaker.Name == "" {
		speaker.Name = speaker.ID.String()
	}
	requestLogger = requestLogger.With("speaker", speaker.Name, "speakerUUID", speaker.ID)

	pc, err := endpoint.api.NewPeerConnection(endpoint.connectionConfiguration)
	if err != nil {
		requestLogger.Error(
			"error while creating new peer connection for answering",
			"err", err,
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := endpoint.addPeerConnection(pc); err != nil {
		pc.Close()
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	requestLogger.Debug("peer connection started")

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		requestLogger.Debug("peer connection state changed", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed:
			pc.Close()
		case webrtc.PeerConnectionStateClosed:
			endpoint.removePeerConnection(pc)
		}
	})

	var trackOnce sync.Once
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		recording := false
		trackOnce.Do(func() { recording = true })
		if !recording {
			requestLogger.Warn("ignoring additional audio track", "trackID", track.ID())
			return
		}
		endpoint.recordTrack(track, speaker, requestLogger)
	})

	if err := pc.SetRemoteDescription(signallingOffer.WebRTCSessionDescription); err != nil {
		requestLogger.Error(
			"error while setting remote description of new peer connection",
			"err", err,
		)
		w.WriteHeader(http.StatusBadRequest)
		pc.Close()
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		requestLogger.Error(
			"error while creating answer of new peer connection",
			"err", err,
		)
		w.WriteHeader(http.StatusInternalServerError)
		pc.Close()
		return
	}

	gatheringComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		requestLogger.Error(
			"error while setting local description of new peer connection",
			"err", err,
		)
		w.WriteHeader(http.StatusInternalServerError)
		pc.Close()
		return
	}

	// Wait for ICE to resolve, so the answer carries every candidate
	select {
	case <-gatheringComplete:
	case <-r.Context().Done():
		requestLogger.Debug("request canceled during ICE gathering")
		pc.Close()
		return
	}
	requestLogger.Debug("answering peer connection ICE resolved")

	answerJSON, err := json.Marshal(pc.LocalDescription())
	if err != nil {
		requestLogger.Error(
			"error while marshalling local description of new peer connection to JSON",
			"err", err,
		)
		w.WriteHeader(http.StatusInternalServerError)
		pc.Close()
		return
	}

	requestLogger.Debug("sending answer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(answerJSON)
}

func (endpoint *RecordingEndpoint) recordTrack(track *webrtc.TrackRemote, speaker *recorder.Speaker, logger *slog.Logger) {
	trackRecorder, err := NewTrackRecorder(track, endpoint.sink, TrackRecorderConfig{
		Speaker:        speaker,
		Codec:          track.Codec().RTPCodecCapability,
		SampleRate:     endpoint.sampleRate,
		OutputChannels: endpoint.outputChannels,
		Clock:          endpoint.clock,
	}, logger)
	if err != nil {
		logger.Error(
			"could not record track",
			"trackID", track.ID(),
			"err", err,
		)
		return
	}

	endpoint.mu.Lock()
	defer endpoint.mu.Unlock()
	if endpoint.closed {
		return
	}
	endpoint.tracks.Go(func() error {
		return trackRecorder.Run(endpoint.ctx)
	})
}
