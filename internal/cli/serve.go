package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/internal/networking"
)

const shutdownTimeout = 5 * time.Second

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var flags recorderFlags
	var listenAddress string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Record WebRTC peers until interrupted",
		Long: "Accept WebRTC session offers on /signal and record the audio track of every peer as its own speaker.\n" +
			"The recording stops on Ctrl+C.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.apply(cmd)
			if cmd.Flags().Changed("listen") {
				viper.Set("listenaddress", listenAddress)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, deps)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&listenAddress, "listen", "l", ":1066", "Address to accept session offers on.")

	return cmd
}

func runServe(ctx context.Context, deps *Dependencies) error {
	logger := slog.Default()

	rec, err := newRecorder(logger)
	if err != nil {
		return err
	}
	api, err := networking.NewAPI(viper.GetStringSlice("codecs"))
	if err != nil {
		return err
	}
	connectionConfiguration := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: viper.GetStringSlice("iceservers")}},
	}

	events := watchEvents(rec, deps.Out)
	defer events.stop()
	if err := rec.Start(); err != nil {
		return err
	}

	sink, flush := liveSink(rec)
	endpoint := networking.NewRecordingEndpoint(
		api,
		connectionConfiguration,
		sink,
		rec.CurrentSample,
		rec.SampleRate(),
		recorderChannels(),
		logger,
	)
	server := &http.Server{
		Addr:    viper.GetString("listenaddress"),
		Handler: endpoint,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("accepting session offers", "listenAddress", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErr:
		logger.Error("server stopped", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("error during server shutdown", "err", shutdownErr)
	}
	if closeErr := endpoint.Close(); closeErr != nil {
		logger.Warn("error while closing peer connections", "err", closeErr)
	}
	flush()
	if stopErr := rec.Stop(); stopErr != nil {
		return stopErr
	}

	if n := events.stop(); n > 0 {
		return fmt.Errorf("%d recording errors", n)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
