package networking

import (
	"github.com/pion/webrtc/v4"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/signalling"
)

// Holds everything a recording endpoint needs to answer a peer
// that wants its audio recorded.
type SignallingOffer struct {
	// Who is speaking. Used as the speaker of every recorded track.
	PeerIdentifier signalling.PeerIdentifier

	WebRTCSessionDescription webrtc.SessionDescription
}
