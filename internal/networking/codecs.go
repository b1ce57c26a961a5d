package networking

import (
	"errors"
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

var (
	// Define a mapping from string representation (e.g. for use in config files) to codec specification
	CodecMap map[string]webrtc.RTPCodecCapability = map[string]webrtc.RTPCodecCapability{
		"CodecOpus48000Stereo": {
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		},
		"CodecOpus48000Mono": {
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  1,
		},
		"CodecPCMU": {
			MimeType:  webrtc.MimeTypePCMU,
			ClockRate: 8000,
			Channels:  1,
		},
		"CodecPCMA": {
			MimeType:  webrtc.MimeTypePCMA,
			ClockRate: 8000,
			Channels:  1,
		},
	}

	// Static payload types of the G.711 codecs. Everything else is dynamic.
	staticPayloadTypes = map[string]webrtc.PayloadType{
		webrtc.MimeTypePCMU: 0,
		webrtc.MimeTypePCMA: 8,
	}
)

const firstDynamicPayloadType webrtc.PayloadType = 111

var ErrNoCodecs = errors.New("no codecs authorized")

// Load and return a list of codecs using the given strings.
// Strings must be associated to a codec in CodecMap, otherwise an error is returned.
func GetCodecs(codecNames []string) ([]webrtc.RTPCodecCapability, error) {
	if len(codecNames) == 0 {
		return nil, ErrNoCodecs
	}

	codecs := make([]webrtc.RTPCodecCapability, len(codecNames))
	var ok bool
	for i, s := range codecNames {
		codecs[i], ok = CodecMap[s]
		if !ok {
			return nil, fmt.Errorf("no codec with associated string %s", s)
		}
	}
	return codecs, nil
}

// Build a webrtc.API that negotiates only the named audio codecs, in order of preference,
// with pion's default interceptors (NACK, RTCP reports) installed.
func NewAPI(codecNames []string) (*webrtc.API, error) {
	codecs, err := GetCodecs(codecNames)
	if err != nil {
		return nil, err
	}

	mediaEngine := &webrtc.MediaEngine{}
	nextPayloadType := firstDynamicPayloadType
	registered := make(map[string]bool)
	for i, codec := range codecs {
		if registered[codecNames[i]] {
			continue
		}
		registered[codecNames[i]] = true

		payloadType, ok := staticPayloadTypes[codec.MimeType]
		if !ok {
			payloadType = nextPayloadType
			nextPayloadType++
		}
		if codec.MimeType == webrtc.MimeTypeOpus && codec.SDPFmtpLine == "" {
			codec.SDPFmtpLine = "minptime=10;useinbandfec=1"
		}

		err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: codec,
			PayloadType:        payloadType,
		}, webrtc.RTPCodecTypeAudio)
		if err != nil {
			return nil, err
		}
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	), nil
}
