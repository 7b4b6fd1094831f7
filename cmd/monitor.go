// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 the mitsuaire authors

package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/mitsuaire/mitsuaire/pkg/cn105"
	"github.com/spf13/cobra"
)

var monitorCaptureFile string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display decoded CN105 traffic in human-readable format",
	Long: `Continuously decode and display CN105 frames as they arrive.

Each frame is shown with timestamp, packet type, and decoded payload data.
The tool is passive: it never transmits, so it is safe to run alongside the
original remote controller on a sniffed link.

With --capture, every decoded frame is also appended to a CBOR stream file
for offline analysis.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorCaptureFile, "capture", "", "Append decoded frames to a CBOR capture file")
}

// capturedFrame is one CBOR capture record.
type capturedFrame struct {
	Time    time.Time `cbor:"1,keyasint"`
	Type    byte      `cbor:"2,keyasint"`
	Payload []byte    `cbor:"3,keyasint"`
}

func runMonitor(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	var capture *cbor.Encoder
	if monitorCaptureFile != "" {
		f, err := os.OpenFile(monitorCaptureFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open capture file: %v", err)
		}
		defer f.Close()
		capture = cbor.NewEncoder(f)
	}

	fmt.Printf("Mitsuaire - CN105 Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if capture != nil {
		fmt.Printf("Capture: %s\n", monitorCaptureFile)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := cn105.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if err == ErrConnectionClosed {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			packet, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if packet == nil {
				continue
			}
			if skipped := decoder.TakeSkippedBytes(); skipped > 0 {
				fmt.Printf("(skipped %d bytes before sync)\n", skipped)
			}
			fmt.Print(cn105.FormatPacket(packet))
			if capture != nil {
				rec := capturedFrame{
					Time:    packet.Timestamp(),
					Type:    packet.Type(),
					Payload: packet.Payload(),
				}
				if err := capture.Encode(rec); err != nil {
					log.Printf("Capture write error: %v", err)
					capture = nil
				}
			}
		}
	}
}
