// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/strqueue/strqueue/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ProgrammeName is attached to every log file name prefix and to records
// written by the command line driver.
const ProgrammeName string = "qtest"

var (
	defaultLoggerFactory *loggerFactory
	defaultLogger        *slog.Logger
)

type loggerFactory struct {
	// If nil, log to stdout. Otherwise, log to this rotating file.
	file      io.WriteCloser
	format    string
	level     cfg.LogSeverity
	logRotate cfg.LogRotateLoggingConfig
}

// init initializes the default logger to write text records to stdout at
// INFO severity.
func init() {
	defaultLoggerFactory = &loggerFactory{
		format: "text",
		level:  cfg.InfoLogSeverity,
	}
	defaultLogger = defaultLoggerFactory.newLogger("")
}

// InitLogFile points the default logger at the file, format and severity in
// the supplied config. An empty file path keeps logging on stdout.
func InitLogFile(c cfg.LoggingConfig) error {
	f := &loggerFactory{
		format:    c.Format,
		level:     c.Severity,
		logRotate: c.LogRotate,
	}
	if c.FilePath != "" {
		// Make sure the file can be created before handing it to lumberjack,
		// which only opens it on the first write.
		fh, err := os.OpenFile(string(c.FilePath), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("error while opening log file: %w", err)
		}
		fh.Close()

		f.file = &lumberjack.Logger{
			Filename:   string(c.FilePath),
			MaxSize:    int(c.LogRotate.MaxFileSizeMb),
			MaxBackups: int(c.LogRotate.BackupFileCount),
			Compress:   c.LogRotate.Compress,
		}
	}

	Close()
	defaultLoggerFactory = f
	defaultLogger = f.newLogger("")
	return nil
}

// SetLogFormat changes the format of the default logger to text or json.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	defaultLogger = defaultLoggerFactory.newLogger("")
}

// Close closes the log file when necessary.
func Close() {
	if f := defaultLoggerFactory.file; f != nil {
		f.Close()
		defaultLoggerFactory.file = nil
	}
}

// Tracef prints the message with TRACE severity in the specified format.
func Tracef(format string, v ...interface{}) {
	logf(LevelTrace, format, v...)
}

// Debugf prints the message with DEBUG severity in the specified format.
func Debugf(format string, v ...interface{}) {
	logf(LevelDebug, format, v...)
}

// Infof prints the message with INFO severity in the specified format.
func Infof(format string, v ...interface{}) {
	logf(LevelInfo, format, v...)
}

// Info prints the message with info severity.
func Info(message string, args ...any) {
	defaultLogger.Info(message, args...)
}

// Warnf prints the message with WARNING severity in the specified format.
func Warnf(format string, v ...interface{}) {
	logf(LevelWarn, format, v...)
}

// Errorf prints the message with ERROR severity in the specified format.
func Errorf(format string, v ...interface{}) {
	logf(LevelError, format, v...)
}

func logf(level slog.Level, format string, v ...interface{}) {
	ctx := context.Background()
	if !defaultLogger.Enabled(ctx, level) {
		return
	}
	defaultLogger.Log(ctx, level, fmt.Sprintf(format, v...))
}

func (f *loggerFactory) writer() io.Writer {
	if f.file != nil {
		return f.file
	}
	return os.Stdout
}

func (f *loggerFactory) newLogger(prefix string) *slog.Logger {
	programLevel := new(slog.LevelVar)
	setLoggingLevel(f.level, programLevel)
	return slog.New(f.createJsonOrTextHandler(f.writer(), programLevel, prefix))
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, programLevel *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       programLevel,
		ReplaceAttr: customiseLevels(f.format, prefix),
	}
	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
