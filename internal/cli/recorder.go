package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/codec"
	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/recorder"
)

// Flags shared by every command that records, overriding the config file when given.
type recorderFlags struct {
	format       string
	mixDown      bool
	pathTemplate string
	gain         float64
}

func (f *recorderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "format", "f", "wav", "Output format (see the formats command).")
	cmd.Flags().BoolVar(&f.mixDown, "mixdown", false, "Record all speakers into a single file.")
	cmd.Flags().StringVarP(&f.pathTemplate, "path-template", "o", recorder.DefaultFileName, "Output path template.")
	cmd.Flags().Float64Var(&f.gain, "gain", 1.0, "Gain applied to every speaker.")
}

// Override the config values of any flag set on the command line.
func (f *recorderFlags) apply(cmd *cobra.Command) {
	if cmd.Flags().Changed("format") {
		viper.Set("format", f.format)
	}
	if cmd.Flags().Changed("mixdown") {
		viper.Set("mixdown", f.mixDown)
	}
	if cmd.Flags().Changed("path-template") {
		viper.Set("pathtemplate", f.pathTemplate)
	}
	if cmd.Flags().Changed("gain") {
		viper.Set("gain", f.gain)
	}
}

// --------------------------------------------------------------------------------

// Create a VoiceRecorder writing files, configured from viper.
func newRecorder(logger *slog.Logger) (*recorder.VoiceRecorder, error) {
	format, err := codec.ParseFormat(viper.GetString("format"))
	if err != nil {
		return nil, err
	}

	host := viper.GetString("host")
	if host == "" {
		host, _ = os.Hostname()
	}

	rec := recorder.NewVoiceRecorder(codec.NewFileWriter(logger), logger)
	err = errors.Join(
		rec.SetSampleRate(viper.GetInt("samplerate")),
		rec.SetFormat(format),
		rec.SetMixDown(viper.GetBool("mixdown")),
		rec.SetMixDownChannels(viper.GetInt("mixdownchannels")),
		rec.SetFileName(viper.GetString("pathtemplate")),
		rec.SetHost(host),
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Channels of the audio submitted to the recorder.
func recorderChannels() int {
	if viper.GetBool("mixdown") {
		return viper.GetInt("mixdownchannels")
	}
	return 1
}

// How long live speakers are held back for each other in mixdown.
const mixdownLatency = 200 * time.Millisecond

// Sink for live producers that submit on the recorder's clock.
//
// In mixdown, speakers are summed by a MixdownSink first, as they would otherwise
// overwrite each other on the single mixdown timeline. flush submits what the mix still
// holds and must be called once producers have stopped, before the recorder stops.
func liveSink(rec *recorder.VoiceRecorder) (sink recorder.BufferSink, flush func()) {
	if !rec.MixDown() {
		return rec, func() {}
	}
	latency := uint64(int64(rec.SampleRate()) * int64(mixdownLatency) / int64(time.Second))
	mixdown := recorder.NewMixdownSink(rec, rec.LocalSpeaker(), recorderChannels(), latency)
	return mixdown, mixdown.Flush
}

// --------------------------------------------------------------------------------

// Reports recorder events to the user while a recording runs.
type eventWatcher struct {
	out    io.Writer
	events <-chan recorder.Event

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	errors int
}

func watchEvents(rec *recorder.VoiceRecorder, out io.Writer) *eventWatcher {
	w := &eventWatcher{
		out:    out,
		events: rec.Events(),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		for {
			select {
			case event := <-w.events:
				w.report(event)
			case <-w.quit:
				return
			}
		}
	}()
	return w
}

func (w *eventWatcher) report(event recorder.Event) {
	switch event.Type {
	case recorder.EventError:
		w.errors++
		fmt.Fprintf(w.out, "error: %v\n", event.Err)
	case recorder.EventRecordingStarted:
		fmt.Fprintln(w.out, "recording started")
	case recorder.EventRecordingStopped:
		fmt.Fprintln(w.out, "recording stopped")
	}
}

// Stop watching, reporting whatever events are still queued.
// Returns the number of errors reported.
func (w *eventWatcher) stop() int {
	w.stopOnce.Do(func() {
		close(w.quit)
		<-w.done
		for {
			select {
			case event := <-w.events:
				w.report(event)
			default:
				return
			}
		}
	})
	return w.errors
}
