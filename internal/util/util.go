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

package util

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// QTEST_PARENT_PROCESS_DIR names the environment variable holding the
// directory relative paths in config files and scripts are resolved against.
const QTEST_PARENT_PROCESS_DIR = "qtest-parent-process-dir"

// GetResolvedPath returns filePath as an absolute path.
//  1. Returns the same filepath in case of absolute path or empty filename.
//  2. Expands a leading "~/" to the user's home directory.
//  3. Resolves any other relative path against QTEST_PARENT_PROCESS_DIR when
//     set, and against the working directory otherwise.
func GetResolvedPath(filePath string) (resolvedPath string, err error) {
	if filePath == "" || path.IsAbs(filePath) {
		resolvedPath = filePath
		return
	}

	// Relative path starting with tilda (~)
	if strings.HasPrefix(filePath, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("fetch home dir: %w", err)
		}
		return filepath.Join(homeDir, filePath[2:]), err
	}

	parentProcessDir, _ := os.LookupEnv(QTEST_PARENT_PROCESS_DIR)
	parentProcessDir = strings.TrimSpace(parentProcessDir)
	if parentProcessDir == "" {
		return filepath.Abs(filePath)
	}
	return filepath.Join(parentProcessDir, filePath), nil
}
