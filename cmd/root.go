// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 the mitsuaire authors

package cmd

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Logging
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "mitsuaire",
	Short: "Mitsubishi CN105 heat pump bridge",
	Long: `Mitsuaire - A bridge between the Mitsubishi CN105 heat pump serial
protocol and a network-addressable control surface.

Provides a long-running bridge daemon (serve) plus one-shot and interactive
tools for monitoring, controlling, and debugging the CN105 link.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 2400]
  WebSocket: --url ws://host/path [--username user]

The WebSocket mode speaks to a raw uart bridge carrying CN105 bytes in binary
frames. For WebSocket authentication, the password is read from the
MITSUAIRE_PASSWORD environment variable, or prompted interactively if not
set. The --password flag is intentionally not provided to avoid leaking
credentials in shell history.`,
	Version: "1.0.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		lvl, err := logrus.ParseLevel(logLevel)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		logrus.SetLevel(lvl)
	},
}

func init() {
	// Serial connection flags. CN105 is fixed at 2400 baud 8E1 on real
	// units; the baud flag exists for bench setups with level shifters
	// that re-clock the link.
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 2400, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
}

// quietEngineLogger returns a logger for interactive commands where engine
// chatter would corrupt the terminal output.
func quietEngineLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
