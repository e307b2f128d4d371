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
	"log/slog"

	"github.com/strqueue/strqueue/cfg"
)

// Severity levels understood by the handlers. TRACE sits below slog's DEBUG
// and OFF above ERROR so that nothing passes it.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

const textTimeLayout = "01/02/2006 15:04:05.000000"

func setLoggingLevel(level cfg.LogSeverity, programLevel *slog.LevelVar) {
	switch level {
	// logs having severity >= the configured value will be logged.
	case cfg.TraceLogSeverity:
		programLevel.Set(LevelTrace)
	case cfg.DebugLogSeverity:
		programLevel.Set(LevelDebug)
	case cfg.InfoLogSeverity:
		programLevel.Set(LevelInfo)
	case cfg.WarningLogSeverity:
		programLevel.Set(LevelWarn)
	case cfg.ErrorLogSeverity:
		programLevel.Set(LevelError)
	case cfg.OffLogSeverity:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}

func severityName(level slog.Level) string {
	switch {
	case level < LevelDebug:
		return string(cfg.TraceLogSeverity)
	case level < LevelInfo:
		return string(cfg.DebugLogSeverity)
	case level < LevelWarn:
		return string(cfg.InfoLogSeverity)
	case level < LevelError:
		return string(cfg.WarningLogSeverity)
	default:
		return string(cfg.ErrorLogSeverity)
	}
}

// customiseLevels renames slog's built-in keys to time/timestamp, severity and
// message, and prepends prefix to every message.
func customiseLevels(format, prefix string) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			t := a.Value.Time()
			if format == "json" {
				return slog.Group("timestamp",
					slog.Int64("seconds", t.Unix()),
					slog.Int("nanos", t.Nanosecond()))
			}
			return slog.String("time", t.Format(textTimeLayout))
		case slog.LevelKey:
			level, _ := a.Value.Any().(slog.Level)
			return slog.String("severity", severityName(level))
		case slog.MessageKey:
			return slog.String("message", prefix+a.Value.String())
		}
		return a
	}
}
