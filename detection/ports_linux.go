//go:build linux

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
	"os"
	"path/filepath"
	"strings"
)

// enumeratePorts returns serial ports on Linux. USB-backed ttys are
// found through sysfs so their vendor/product metadata comes along;
// built-in ports are globbed from /dev.
func enumeratePorts(_ context.Context) ([]Port, error) {
	var ports []Port

	if usb, err := usbSerialPorts(); err == nil {
		ports = append(ports, usb...)
	}
	ports = append(ports, builtinSerialPorts()...)

	if len(ports) == 0 {
		return fallbackSerialPorts(), nil
	}
	return ports, nil
}

func usbSerialPorts() ([]Port, error) {
	const ttyDir = "/sys/class/tty"
	entries, err := os.ReadDir(ttyDir)
	if err != nil {
		return nil, err
	}

	var ports []Port
	for _, entry := range entries {
		if port, ok := usbSerialEntry(ttyDir, entry); ok {
			ports = append(ports, port)
		}
	}
	return ports, nil
}

func usbSerialEntry(ttyDir string, entry os.DirEntry) (Port, bool) {
	if entry.IsDir() {
		return Port{}, false
	}

	devicePath := filepath.Join(ttyDir, entry.Name(), "device")
	if _, err := os.Stat(devicePath); err != nil {
		return Port{}, false
	}
	resolved, err := filepath.EvalSymlinks(devicePath)
	if err != nil || !strings.Contains(resolved, "/usb") {
		return Port{}, false
	}

	port := Port{
		Path: "/dev/" + entry.Name(),
		Name: entry.Name(),
	}
	readUSBAttributes(&port, resolved)
	return port, true
}

// readUSBAttributes walks up the sysfs device tree until it finds the
// USB device node carrying idVendor/idProduct.
func readUSBAttributes(port *Port, devicePath string) {
	current := devicePath
	for i := 0; i < 10; i++ {
		if readUSBIdentifiers(port, current) {
			return
		}
		current = filepath.Dir(current)
		if current == "/" || current == "." {
			return
		}
	}
}

func readUSBIdentifiers(port *Port, path string) bool {
	if !strings.HasPrefix(filepath.Clean(path), "/sys/") {
		return false
	}

	vidBytes, err := os.ReadFile(filepath.Clean(filepath.Join(path, "idVendor"))) // #nosec G304 -- path is validated to be under /sys/
	if err != nil {
		return false
	}
	pidBytes, err := os.ReadFile(filepath.Clean(filepath.Join(path, "idProduct"))) // #nosec G304 -- path is validated to be under /sys/
	if err != nil {
		return false
	}

	vid := strings.TrimSpace(string(vidBytes))
	pid := strings.TrimSpace(string(pidBytes))
	port.VIDPID = strings.ToUpper(vid + ":" + pid)

	readUSBDescriptors(port, path)
	return true
}

func readUSBDescriptors(port *Port, path string) {
	if !strings.HasPrefix(filepath.Clean(path), "/sys/") {
		return
	}

	// #nosec G304 -- path is validated to be under /sys/
	if b, err := os.ReadFile(filepath.Clean(filepath.Join(path, "manufacturer"))); err == nil {
		port.Manufacturer = strings.TrimSpace(string(b))
	}
	// #nosec G304 -- path is validated to be under /sys/
	if b, err := os.ReadFile(filepath.Clean(filepath.Join(path, "product"))); err == nil {
		port.Product = strings.TrimSpace(string(b))
	}
	// #nosec G304 -- path is validated to be under /sys/
	if b, err := os.ReadFile(filepath.Clean(filepath.Join(path, "serial"))); err == nil {
		port.SerialNumber = strings.TrimSpace(string(b))
	}
}

func builtinSerialPorts() []Port {
	var ports []Port
	for _, pattern := range []string{"/dev/ttyS*", "/dev/ttyAMA*"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			if _, err := os.Stat(path); err == nil {
				ports = append(ports, Port{Path: path, Name: filepath.Base(path)})
			}
		}
	}
	return ports
}

// fallbackSerialPorts globs the usual device names when sysfs gave us
// nothing, e.g. inside a stripped-down container.
func fallbackSerialPorts() []Port {
	var ports []Port
	patterns := []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*", "/dev/ttyAMA*"}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			if _, err := os.Stat(path); err == nil {
				ports = append(ports, Port{Path: path, Name: filepath.Base(path)})
			}
		}
	}
	return ports
}
