package utils

import (
	"github.com/spf13/viper"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/recorder"
)

// Set the viper defaults for the voicerecorder commands.
func SetViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")
	viper.SetDefault("logmaxsizemb", 100)
	viper.SetDefault("logmaxbackups", 3)

	viper.SetDefault("samplerate", recorder.DefaultSampleRate)
	viper.SetDefault("format", "wav")
	viper.SetDefault("mixdown", false)
	viper.SetDefault("mixdownchannels", 1)
	viper.SetDefault("pathtemplate", recorder.DefaultFileName)
	viper.SetDefault("host", "")
	viper.SetDefault("gain", 1.0)

	viper.SetDefault("listenaddress", ":1066")
	viper.SetDefault("codecs", []string{"CodecOpus48000Stereo", "CodecPCMU", "CodecPCMA"})
	viper.SetDefault("iceservers", []string{"stun:stun.l.google.com:19302"})
}
