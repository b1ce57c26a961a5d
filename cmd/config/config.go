package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/internal/utils"
)

// Load the config file at configFilePath into viper, on top of the defaults.
// A missing config file is not an error; the defaults apply.
func LoadConfig(configFilePath string) error {
	utils.SetViperDefaults()

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			slog.Info("no config file found", "configFilePath", configFilePath)
			return nil
		}
		slog.Error("error during config read", "err", err)
		return fmt.Errorf("reading config %s: %w", configFilePath, err)
	}
	return nil
}

// Configure the default slog logger from the loaded config.
//
// Returns the log file, if any, so it may be closed on exit.
func ConfigureLogger() (io.Closer, error) {
	logFile, err := utils.ConfigureDefaultLogger(
		viper.GetString("loglevel"),
		viper.GetString("logfile"),
		utils.LogFileOptions{
			MaxSizeMB:  viper.GetInt("logmaxsizemb"),
			MaxBackups: viper.GetInt("logmaxbackups"),
		},
		slog.HandlerOptions{},
	)
	if err != nil {
		return nil, fmt.Errorf("configuring logger with level %q: %w", viper.GetString("loglevel"), err)
	}
	return logFile, nil
}
