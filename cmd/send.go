// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 the mitsuaire authors

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/mitsuaire/mitsuaire/pkg/cn105"
	"github.com/spf13/cobra"
)

var (
	sendNoChecksum bool
	sendTimeout    int
)

var sendCmd = &cobra.Command{
	Use:   "send <hex-bytes>",
	Short: "Inject a raw CN105 frame and print the unit's reply",
	Long: `Transmit arbitrary bytes on the CN105 link and print the next frame the
unit sends back, if any.

The argument is a hex string, spaces allowed. By default the frame checksum
is computed and appended; pass a complete frame with --no-checksum to send
the bytes exactly as given (including deliberately broken checksums).

This is a protocol debugging tool: the bytes are not validated or
interpreted before transmission. A silent unit is reported, not treated as
an error.

Example:
  mitsuaire send --port /dev/ttyUSB0 "fc 42 01 30 10 03 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00"`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&sendNoChecksum, "no-checksum", false, "Send the bytes as given, without appending a checksum")
	sendCmd.Flags().IntVar(&sendTimeout, "timeout", 2, "Seconds to wait for a reply")
}

func runSend(cmd *cobra.Command, args []string) error {
	raw, err := hex.DecodeString(strings.ReplaceAll(args[0], " ", ""))
	if err != nil {
		return fmt.Errorf("invalid hex string: %v", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("empty frame")
	}
	if !sendNoChecksum {
		raw = cn105.AppendChecksum(raw)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	session := cn105.NewSession(conn, cn105.SessionConfig{
		Timeout: time.Duration(sendTimeout) * time.Second,
		Logger:  quietEngineLogger(),
	})
	defer session.Close()

	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("TX: % X\n", raw)

	resp, err := session.Inject(context.Background(), raw)
	if err != nil {
		return err
	}
	if resp == nil {
		fmt.Printf("No reply within %d seconds\n", sendTimeout)
		return nil
	}

	rawResp, err := resp.Bytes()
	if err == nil {
		fmt.Printf("RX: % X\n", rawResp)
	}
	fmt.Print(cn105.FormatPacket(resp))
	return nil
}
