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

// bkflash programs firmware images into Beken boards over a serial
// boot ROM session.
//
// Usage:
//
//	bkflash flash -file app.bin -port /dev/ttyUSB0 [-addr 0x10000]
//	bkflash link-check -port /dev/ttyUSB0
//	bkflash list-ports
//	bkflash monitor -port /dev/ttyUSB0 [-baud 115200]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/haivivi/go-bkboot"
	"github.com/haivivi/go-bkboot/detection"
	"github.com/haivivi/go-bkboot/flasher"
	"github.com/haivivi/go-bkboot/transport/uart"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "flash":
		err = runFlash(os.Args[2:])
	case "link-check":
		err = runLinkCheck(os.Args[2:])
	case "list-ports":
		err = runListPorts(os.Args[2:])
	case "monitor":
		err = runMonitor(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "bkflash: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "bkflash: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `bkflash - Beken serial boot ROM flashing tool

Commands:
  flash       program a firmware image and verify it
  link-check  test whether a board answers on the serial link
  list-ports  enumerate candidate serial ports
  monitor     print serial output after a reset

Run "bkflash <command> -h" for command flags.
`)
}

// commonFlags are shared by the commands that open a serial port.
type commonFlags struct {
	configPath string
	port       string
	baud       int
	debug      bool
}

func registerCommonFlags(fs *flag.FlagSet, cf *commonFlags) {
	fs.StringVar(&cf.configPath, "config", "", "Config file (TOML); default is the user config dir")
	fs.StringVar(&cf.port, "port", "", "Serial port path (auto-detect if empty)")
	fs.IntVar(&cf.baud, "baud", 0, "Initial baud rate (default from config, else 115200)")
	fs.BoolVar(&cf.debug, "debug", false, "Enable debug logging")
}

// resolveConfig loads file defaults and folds the shared flags in.
func resolveConfig(cf *commonFlags) (*config, error) {
	path := cf.configPath
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		return nil, err
	}

	if cf.port != "" {
		cfg.Port = cf.port
	}
	if cf.baud != 0 {
		cfg.BaudRate = cf.baud
	}
	if cf.debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}

// resolvePort picks the configured port, or the best detection
// candidate when none is configured.
func resolvePort(ctx context.Context, cfg *config, logger zerolog.Logger) (string, error) {
	if cfg.Port != "" {
		return cfg.Port, nil
	}

	ports, err := detection.ListPorts(ctx)
	if err != nil {
		return "", fmt.Errorf("no port given and auto-detection failed: %w", err)
	}

	best := ports[0]
	for _, p := range ports[1:] {
		if p.Confidence > best.Confidence {
			best = p
		}
	}
	logger.Info().
		Str("port", best.Path).
		Str("confidence", best.Confidence.String()).
		Msg("auto-detected serial port")
	return best.Path, nil
}

func openDevice(ctx context.Context, cfg *config, logger zerolog.Logger) (*bkboot.Device, error) {
	port, err := resolvePort(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	transport, err := uart.NewWithBaudRate(port, cfg.BaudRate)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", port, err)
	}

	retryCfg := bkboot.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.Retries

	dev, err := bkboot.New(transport,
		bkboot.WithRetryConfig(retryCfg),
		bkboot.WithLogger(logger),
	)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	return dev, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runFlash(args []string) error {
	fs := flag.NewFlagSet("flash", flag.ExitOnError)
	var cf commonFlags
	registerCommonFlags(fs, &cf)
	file := fs.String("file", "", "Firmware image to program (required)")
	addrStr := fs.String("addr", "0x10000", "Flash start address")
	fastBaud := fs.Int("fast-baud", -1, "Baud rate for the transfer phase, 0 to disable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("flash: -file is required")
	}

	addr64, err := strconv.ParseUint(*addrStr, 0, 32)
	if err != nil {
		return fmt.Errorf("flash: bad address %q: %w", *addrStr, err)
	}

	cfg, err := resolveConfig(&cf)
	if err != nil {
		return err
	}
	if *fastBaud >= 0 {
		cfg.FastBaudRate = *fastBaud
	}
	logger := newLogger(cfg.LogLevel)

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("flash: %w", err)
	}
	img, err := flasher.NewImage(data, uint32(addr64))
	if err != nil {
		return fmt.Errorf("flash: %s: %w", *file, err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	dev, err := openDevice(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = dev.Close() }()

	logger.Info().Msg("hold the board in reset, release to connect")

	res, err := flasher.New(dev).Flash(ctx, img, flasher.Options{
		FastBaudRate: cfg.FastBaudRate,
		Progress: func(sector, total int, _ uint32, _ bool) {
			fmt.Fprintf(os.Stderr, "\rsector %d/%d", sector, total)
			if sector == total {
				fmt.Fprintln(os.Stderr)
			}
		},
	})
	if err != nil {
		return err
	}

	printResult(res, logger)
	switch res.Status {
	case flasher.StatusVerified:
		return nil
	case flasher.StatusInconclusive:
		logger.Warn().Msg("image written but verification was inconclusive")
		return nil
	default:
		return fmt.Errorf("flash finished with status %s", res.Status)
	}
}

func printResult(res *flasher.Result, logger zerolog.Logger) {
	logger.Info().
		Str("status", res.Status.String()).
		Int("written", res.SectorsWritten).
		Int("skipped", res.SectorsSkipped).
		Str("elapsed", res.Elapsed.Round(time.Millisecond).String()).
		Str("crc", fmt.Sprintf("0x%08X", res.LocalCRC)).
		Msg("flash run complete")
}

func runLinkCheck(args []string) error {
	fs := flag.NewFlagSet("link-check", flag.ExitOnError)
	var cf commonFlags
	registerCommonFlags(fs, &cf)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := resolveConfig(&cf)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	ctx, cancel := signalContext()
	defer cancel()

	dev, err := openDevice(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = dev.Close() }()

	logger.Info().Msg("hold the board in reset, release to connect")
	if err := flasher.New(dev).Connect(ctx); err != nil {
		return err
	}

	if id, err := dev.ReadFlashID(); err == nil && id != 0 {
		logger.Info().Str("flash_id", fmt.Sprintf("0x%08X", id)).Msg("link ok")
	} else {
		logger.Info().Msg("link ok")
	}
	return nil
}

func runListPorts(args []string) error {
	fs := flag.NewFlagSet("list-ports", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	ports, err := detection.ListPorts(ctx)
	if err != nil {
		return err
	}

	for _, p := range ports {
		line := fmt.Sprintf("%-16s %s", p.Path, p.Confidence)
		if p.Product != "" {
			line += "  " + p.Product
		}
		if p.VIDPID != "" {
			line += "  [" + p.VIDPID + "]"
		}
		fmt.Println(line)
	}
	return nil
}
