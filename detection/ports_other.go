//go:build !linux

// Copyright 2026 The go-bkboot Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package detection

import (
	"context"
	"fmt"
	"path/filepath"

	"go.bug.st/serial"
)

// enumeratePorts returns serial ports via the serial library's native
// enumeration. No USB metadata on these platforms, so confidence
// ranking falls back to name heuristics only.
func enumeratePorts(_ context.Context) ([]Port, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	ports := make([]Port, 0, len(names))
	for _, name := range names {
		ports = append(ports, Port{
			Path: name,
			Name: filepath.Base(name),
		})
	}
	return ports, nil
}
