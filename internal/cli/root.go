package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/cmd/config"
)

type Dependencies struct {
	// Destination of command output that is not logging.
	Out io.Writer

	// Open log file, set once the config is loaded.
	logFile io.Closer
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	var configFilePath string

	rootCmd := &cobra.Command{
		Use:   "voicerecorder",
		Short: "Record every speaker of a conversation to its own audio file",
		Long: "Records multiple speakers into per-speaker audio files on a shared timeline, padding silence " +
			"where a speaker is quiet. Speakers are either audio files (record) or WebRTC peers (serve).",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(configFilePath); err != nil {
				return err
			}
			logFile, err := config.ConfigureLogger()
			if err != nil {
				return err
			}
			deps.logFile = logFile
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if deps.logFile != nil {
				return deps.logFile.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFilePath, "config", "config.yaml", "Set the file path to the config file.")

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewSendCmd(deps))
	rootCmd.AddCommand(NewFormatsCmd(deps))

	return rootCmd
}
