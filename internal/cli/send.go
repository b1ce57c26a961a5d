package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/internal/networking"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/audiodevice/device"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/encoderdecoder"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/signalling"
)

const (
	sendFrameDuration = 20 * time.Millisecond
	connectTimeout    = 15 * time.Second
)

type sendOptions struct {
	endpointURL string
	name        string
	codecName   string
}

func NewSendCmd(deps *Dependencies) *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send FILE.wav",
		Short: "Stream a .wav file to a serve command as a WebRTC peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSend(ctx, deps, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.endpointURL, "endpoint", "e", "http://localhost:1066/signal", "URL of the recording endpoint.")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "Speaker name (default: file name).")
	cmd.Flags().StringVarP(&opts.codecName, "codec", "c", "CodecOpus48000Stereo", "Codec to send with, see the codecs config key.")

	return cmd
}

func runSend(ctx context.Context, deps *Dependencies, path string, opts sendOptions) error {
	logger := slog.Default()

	capability, ok := networking.CodecMap[opts.codecName]
	if !ok {
		return fmt.Errorf("no codec with associated string %s", opts.codecName)
	}
	trackProperties := audiodevice.DeviceProperties{
		SampleRate:  int(capability.ClockRate),
		NumChannels: int(capability.Channels),
	}
	encoder, err := encoderdecoder.NewEncoderDecoder(
		encoderdecoder.EncoderDecoderTypeFromMimeType(capability.MimeType),
		trackProperties.SampleRate,
		trackProperties.NumChannels,
	)
	if err != nil {
		return err
	}

	source, err := device.NewFileAudioInputDevice(path, sendFrameDuration, logger)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	conversion, err := device.NewAudioFormatConversionDevice(source.GetDeviceProperties(), trackProperties, logger)
	if err != nil {
		source.Close()
		return err
	}
	conversion.SetStream(source.GetStream())

	// --------------------------------------------------------------------------------

	api, err := networking.NewAPI([]string{opts.codecName})
	if err != nil {
		source.Close()
		return err
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: viper.GetStringSlice("iceservers")}},
	})
	if err != nil {
		source.Close()
		return err
	}
	defer pc.Close()

	connected := make(chan struct{})
	var connectedOnce sync.Once
	pc.OnConnectionStateChange(func(pcs webrtc.PeerConnectionState) {
		logger.Debug("peer connection state change", "peer connection state", pcs.String())
		if pcs == webrtc.PeerConnectionStateConnected {
			connectedOnce.Do(func() { close(connected) })
		}
	})

	peer := signalling.PeerIdentifier{Uuid: uuid.New(), Name: opts.name}
	if peer.Name == "" {
		peer.Name = speakerName(path, 0, nil)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		capability,
		fmt.Sprintf("%s audio", peer.Uuid),
		fmt.Sprintf("%s audio stream", peer.Uuid),
	)
	if err != nil {
		source.Close()
		return err
	}
	rtpSender, err := pc.AddTrack(track)
	if err != nil {
		source.Close()
		return err
	}
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := rtpSender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := networking.Dial(dialCtx, pc, opts.endpointURL, peer, logger); err != nil {
		source.Close()
		return err
	}
	select {
	case <-connected:
	case <-dialCtx.Done():
		source.Close()
		return fmt.Errorf("connecting to %s: %w", opts.endpointURL, dialCtx.Err())
	}

	// --------------------------------------------------------------------------------

	fmt.Fprintf(deps.Out, "sending %s as %s (%s)\n", path, peer.Name, source.Duration())
	source.Play(ctx)

	samplesPerFrame := trackProperties.NumChannels * trackProperties.SampleRate * int(sendFrameDuration) / int(time.Second)
	var sent int
	for pcmFrame := range rechunk(conversion.GetStream(), samplesPerFrame) {
		encoded, err := encoder.Encode(pcmFrame)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", strings.ToLower(capability.MimeType), err)
		}
		if err := track.WriteSample(media.Sample{Data: encoded, Duration: sendFrameDuration}); err != nil {
			return err
		}
		sent++
	}
	logger.Info("finished sending", "frames", sent, "interrupted", ctx.Err() != nil)
	return nil
}

// Regroup a stream of PCM frames into frames of exactly size samples.
// The final frame is padded with silence.
func rechunk(in <-chan frame.PCMFrame, size int) <-chan frame.PCMFrame {
	out := make(chan frame.PCMFrame)
	go func() {
		defer close(out)
		pending := make(frame.PCMFrame, 0, size)
		for f := range in {
			for len(f) > 0 {
				n := min(size-len(pending), len(f))
				pending = append(pending, f[:n]...)
				f = f[n:]
				if len(pending) == size {
					out <- pending
					pending = make(frame.PCMFrame, 0, size)
				}
			}
		}
		if len(pending) > 0 {
			out <- pending[:size]
		}
	}()
	return out
}
