package networking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/signalling"
)

// Offer pc to the recording endpoint at endpointURL (including the /signal path)
// and apply its answer. Tracks to be recorded must be added to pc beforehand.
//
// pc stays owned by the caller, and is not closed on failure.
// If no logger is given, slog.Default() is used.
func Dial(
	ctx context.Context,
	pc *webrtc.PeerConnection,
	endpointURL string,
	peer signalling.PeerIdentifier,
	logger *slog.Logger,
) error {
	if logger == nil {
		logger = slog.Default()
	}
	requestLogger := logger.WithGroup("request").With(
		"requestUUID", uuid.New().String(),
		"remoteEndpoint", endpointURL,
	)
	requestLogger.Debug("new SDP offer started")

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		requestLogger.Error(
			"error while creating new offer in dialing",
			"err", err,
		)
		return err
	}

	gatheringComplete := webrtc.GatheringCompletePromise(pc)
	if err = pc.SetLocalDescription(offer); err != nil {
		requestLogger.Error(
			"error while setting connection local description in dialing",
			"err", err,
		)
		return err
	}
	select {
	case <-gatheringComplete:
	case <-ctx.Done():
		return ctx.Err()
	}

	signallingOfferJSON, err := json.Marshal(SignallingOffer{
		PeerIdentifier:           peer,
		WebRTCSessionDescription: *pc.LocalDescription(),
	})
	if err != nil {
		requestLogger.Error(
			"error while marshalling offer to JSON",
			"err", err,
		)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(signallingOfferJSON))
	if err != nil {
		requestLogger.Error(
			"error while creating new http request",
			"err", err,
		)
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// If ctx is canceled, or its timeout is reached, this returns with non-nil error
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		requestLogger.Error(
			"error while posting offer to recording endpoint",
			"err", err,
		)
		return err
	}
	defer resp.Body.Close()
	requestLogger.Debug("response received from recording endpoint", "status", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recording endpoint answered %s", resp.Status)
	}

	var answer webrtc.SessionDescription
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		requestLogger.Error(
			"error while parsing answer response from recording endpoint",
			"err", err,
		)
		return err
	}

	if err = pc.SetRemoteDescription(answer); err != nil {
		requestLogger.Error(
			"error while setting connection remote description in dialing",
			"err", err,
		)
		return err
	}
	requestLogger.Debug("peer connection set")
	return nil
}
