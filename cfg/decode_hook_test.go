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

package cfg

import (
	"os"
	"path"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindFlag(t *testing.T, v *viper.Viper, key string, f *flag.Flag) {
	t.Helper()
	err := v.BindPFlag(key, f)
	if err != nil {
		t.Fatalf("Error occured while binding key: %s to flag: %v", key, err)
	}
}

func TestParsingSuccess(t *testing.T) {
	t.Parallel()
	type TestConfig struct {
		BoolParam        bool
		StringParam      string
		IntParam         int
		DurationParam    time.Duration
		StringSliceParam []string
		LogSeverityParam LogSeverity
		PathParam        ResolvedPath
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("stringParam", "", "")
	fs.Int("intParam", 0, "")
	fs.Duration("durationParam", 0*time.Nanosecond, "")
	fs.StringSlice("stringSliceParam", []string{}, "")
	fs.Bool("boolParam", false, "")
	fs.String("logSeverityParam", "INFO", "")
	fs.String("pathParam", "", "")
	v := viper.New()
	bindFlag(t, v, "StringParam", fs.Lookup("stringParam"))
	bindFlag(t, v, "IntParam", fs.Lookup("intParam"))
	bindFlag(t, v, "DurationParam", fs.Lookup("durationParam"))
	bindFlag(t, v, "StringSliceParam", fs.Lookup("stringSliceParam"))
	bindFlag(t, v, "BoolParam", fs.Lookup("boolParam"))
	bindFlag(t, v, "LogSeverityParam", fs.Lookup("logSeverityParam"))
	bindFlag(t, v, "PathParam", fs.Lookup("pathParam"))
	args := []string{
		"--stringParam=abc",
		"--intParam=23",
		"--durationParam=30s",
		"--stringSliceParam=a,b",
		"--boolParam",
		"--logSeverityParam=debug",
		"--pathParam=~/trace.cmd",
	}
	require.NoError(t, fs.Parse(args))

	var c TestConfig
	err := v.Unmarshal(&c, viper.DecodeHook(DecodeHook()))

	require.NoError(t, err)
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, "abc", c.StringParam)
	assert.Equal(t, 23, c.IntParam)
	assert.Equal(t, 30*time.Second, c.DurationParam)
	assert.Equal(t, []string{"a", "b"}, c.StringSliceParam)
	assert.True(t, c.BoolParam)
	assert.Equal(t, DebugLogSeverity, c.LogSeverityParam)
	assert.Equal(t, ResolvedPath(path.Join(homeDir, "trace.cmd")), c.PathParam)
}

func TestParsingInvalidLogSeverity(t *testing.T) {
	t.Parallel()
	type TestConfig struct {
		LogSeverityParam LogSeverity
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("logSeverityParam", "INFO", "")
	v := viper.New()
	bindFlag(t, v, "LogSeverityParam", fs.Lookup("logSeverityParam"))
	require.NoError(t, fs.Parse([]string{"--logSeverityParam=loud"}))

	var c TestConfig
	err := v.Unmarshal(&c, viper.DecodeHook(DecodeHook()))

	assert.ErrorContains(t, err, "invalid log severity level: loud")
}
