package utils

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

var ErrUnexpectedLogLevel = errors.New("unexpected log level")

// Rotation of the log file.
type LogFileOptions struct {
	// Size in megabytes at which the log file is rotated. Zero uses lumberjack's default.
	MaxSizeMB int

	// Number of rotated files to keep. Zero keeps all.
	MaxBackups int
}

// Configure the slog logger with a specific log level and potential output file.
//
// Valid log levels are "none", "error", "warn", "info", "debug". Any other value returns an error.
// logFile may either specify a file path or be empty, in which case the logger points to stdout.
// Log files are written as JSON and rotated according to fileOptions.
//
// Returns the writer slog writes to, so it may be gracefully shut:
// ```
// logFile, err := utils.ConfigureDefaultLogger(...)
//
//	if logFile != nil {
//		defer logFile.Close()
//	}
//
// ```
func ConfigureDefaultLogger(
	logLevel string,
	logFile string,
	fileOptions LogFileOptions,
	loggerOptions slog.HandlerOptions,
) (io.Closer, error) {
	switch logLevel {
	case "none":
		// No logging is required, disable the logger and return
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	case "error":
		loggerOptions.Level = slog.LevelError
	case "warn":
		loggerOptions.Level = slog.LevelWarn
	case "info":
		loggerOptions.Level = slog.LevelInfo
	case "debug":
		loggerOptions.Level = slog.LevelDebug
	default:
		return nil, ErrUnexpectedLogLevel
	}

	// --------------------------------------------------------------------------------

	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &loggerOptions)))
		return nil, nil
	}

	rotatingFile := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    fileOptions.MaxSizeMB,
		MaxBackups: fileOptions.MaxBackups,
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(rotatingFile, &loggerOptions)))
	return rotatingFile, nil
}
