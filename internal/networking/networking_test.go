package networking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/signalling"
)

func TestGetCodecs(t *testing.T) {
	codecs, err := GetCodecs([]string{"CodecPCMU", "CodecOpus48000Mono"})
	require.NoError(t, err)
	require.Len(t, codecs, 2)
	assert.Equal(t, webrtc.MimeTypePCMU, codecs[0].MimeType)
	assert.Equal(t, uint32(48000), codecs[1].ClockRate)

	_, err = GetCodecs(nil)
	assert.ErrorIs(t, err, ErrNoCodecs)
	_, err = GetCodecs([]string{"CodecSpeex"})
	assert.Error(t, err)
}

func TestNewAPI(t *testing.T) {
	api, err := NewAPI([]string{"CodecOpus48000Stereo", "CodecPCMU", "CodecPCMA", "CodecPCMU"})
	require.NoError(t, err)

	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer pc.Close()

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio)
	require.NoError(t, err)
	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	assert.Contains(t, offer.SDP, "opus/48000")
	assert.Contains(t, offer.SDP, "PCMU/8000")
	assert.Contains(t, offer.SDP, "PCMA/8000")
}

func newTestEndpoint(t *testing.T, sink *fakeBufferSink) (*RecordingEndpoint, *httptest.Server) {
	t.Helper()
	api, err := NewAPI([]string{"CodecPCMU"})
	require.NoError(t, err)

	endpoint := NewRecordingEndpoint(api, webrtc.Configuration{}, sink, fixedClock(1000), 8000, 1, nil)
	server := httptest.NewServer(endpoint)
	t.Cleanup(func() {
		server.Close()
		endpoint.Close()
	})
	return endpoint, server
}

func TestRecordingEndpointRejectsBadRequests(t *testing.T) {
	_, server := newTestEndpoint(t, &fakeBufferSink{})

	resp, err := http.Post(server.URL+"/signal", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(server.URL + "/signal")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(server.URL+"/signal", "application/json", strings.NewReader(`{"WebRTCSessionDescription":{"type":"offer","sdp":"garbage"}}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecordingEndpointRecordsPeer(t *testing.T) {
	if testing.Short() {
		t.Skip("establishes a real WebRTC connection")
	}

	sink := &fakeBufferSink{}
	endpoint, server := newTestEndpoint(t, sink)

	api, err := NewAPI([]string{"CodecPCMU"})
	require.NoError(t, err)
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer pc.Close()

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU}, "audio", "alice")
	require.NoError(t, err)
	_, err = pc.AddTrack(track)
	require.NoError(t, err)

	peer := signalling.PeerIdentifier{Uuid: uuid.New(), Name: "Alice"}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, Dial(ctx, pc, server.URL+"/signal", peer, nil))
	assert.Equal(t, 1, endpoint.NumPeerConnections())

	payload := make([]byte, 160)
	for i := range payload {
		payload[i] = 0xff
	}
	require.Eventually(t, func() bool {
		track.WriteSample(media.Sample{Data: payload, Duration: 20 * time.Millisecond})
		return len(sink.snapshot()) >= 5
	}, 10*time.Second, 20*time.Millisecond)

	buffers := sink.snapshot()
	assert.Equal(t, peer.Uuid, buffers[0].speaker.ID)
	assert.Equal(t, "Alice", buffers[0].speaker.Name)
	assert.Equal(t, uint64(1000), buffers[0].absoluteStartSample)
	assert.Equal(t, 160, buffers[0].sampleCount)

	require.NoError(t, endpoint.Close())
}
