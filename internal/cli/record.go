package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/audiodevice/device"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/recorder"
)

type recordOptions struct {
	names         []string
	realtime      bool
	frameDuration time.Duration
}

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var flags recorderFlags
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record FILE.wav...",
		Short: "Record .wav files as speakers of one conversation",
		Long: "Record every .wav file as its own speaker, all starting at the beginning of the recording.\n" +
			"Files are converted to the recording sample rate. Use --realtime to play them at their natural pace.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.apply(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRecord(ctx, deps, args, opts)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringSliceVarP(&opts.names, "name", "n", nil, "Speaker names in file order (default: file names).")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "Play files in real time instead of as fast as possible.")
	cmd.Flags().DurationVar(&opts.frameDuration, "frame-duration", 20*time.Millisecond, "Duration of every buffer submitted.")

	return cmd
}

func runRecord(ctx context.Context, deps *Dependencies, files []string, opts recordOptions) error {
	logger := slog.Default()

	rec, err := newRecorder(logger)
	if err != nil {
		return err
	}
	sinkProperties := audiodevice.DeviceProperties{
		SampleRate:  rec.SampleRate(),
		NumChannels: recorderChannels(),
	}

	// Open every file before recording so a bad file records nothing.
	sources := make([]*device.FileAudioInputDevice, 0, len(files))
	for _, path := range files {
		source, err := device.NewFileAudioInputDevice(path, opts.frameDuration, logger)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		sources = append(sources, source)
	}
	closeSources := func() {
		for _, s := range sources {
			s.Close()
		}
	}

	events := watchEvents(rec, deps.Out)
	defer events.stop()
	if err := rec.Start(); err != nil {
		closeSources()
		return err
	}

	// Speakers are recorded on their own, or summed by a mixer into the single mixdown speaker.
	var mixer *device.MixerDevice
	if rec.MixDown() {
		mixer = device.NewMixerDevice(sinkProperties, opts.frameDuration, logger)
	}
	sinks := make([]*device.RecorderSinkDevice, 0, len(sources))
	for i, source := range sources {
		stream, err := convertFile(source, sinkProperties, logger)
		if err != nil {
			closeSources()
			_ = rec.Stop()
			return fmt.Errorf("converting %s: %w", files[i], err)
		}
		if mixer != nil {
			if err := mixer.AddStream(stream); err != nil {
				closeSources()
				_ = rec.Stop()
				return err
			}
			continue
		}
		speaker := &recorder.Speaker{ID: uuid.New(), Name: speakerName(files[i], i, opts.names)}
		sink := device.NewRecorderSinkDevice(rec, speaker, sinkProperties, rec.FirstSampleAbsolute(), logger)
		sink.SetStream(stream)
		sinks = append(sinks, sink)
	}
	if mixer != nil {
		sink := device.NewRecorderSinkDevice(rec, rec.LocalSpeaker(), sinkProperties, rec.FirstSampleAbsolute(), logger)
		sink.SetStream(mixer.GetStream())
		mixer.Start()
		sinks = append(sinks, sink)
	}

	startTime := time.Now()
	group, groupCtx := errgroup.WithContext(ctx)
	for _, source := range sources {
		group.Go(func() error {
			if opts.realtime {
				source.Play(groupCtx)
			} else {
				source.Drain(groupCtx)
			}
			return nil
		})
	}
	for _, sink := range sinks {
		group.Go(func() error {
			<-sink.Done()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if err := rec.Stop(); err != nil {
		return err
	}
	if n := events.stop(); n > 0 {
		return fmt.Errorf("%d recording errors", n)
	}
	logger.Info(
		"recorded files",
		"speakers", len(sources),
		"mixDown", rec.MixDown(),
		"duration", time.Since(startTime),
		"interrupted", ctx.Err() != nil,
	)
	return nil
}

// Build source -> conversion -> gain for one file, returning the stream in recorder format.
func convertFile(
	source *device.FileAudioInputDevice,
	sinkProperties audiodevice.DeviceProperties,
	logger *slog.Logger,
) (<-chan frame.PCMFrame, error) {
	conversion, err := device.NewAudioFormatConversionDevice(source.GetDeviceProperties(), sinkProperties, logger)
	if err != nil {
		return nil, err
	}
	gain := device.NewAudioAugmentationDevice(sinkProperties)
	gain.SetVolumeAdjustMagnitude(float32(viper.GetFloat64("gain")))

	conversion.SetStream(source.GetStream())
	gain.SetStream(conversion.GetStream())
	return gain.GetStream(), nil
}

func speakerName(path string, index int, names []string) string {
	if index < len(names) && names[index] != "" {
		return names[index]
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
