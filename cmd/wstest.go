// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 the mitsuaire authors

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitsuaire/mitsuaire/pkg/cn105"
	"github.com/spf13/cobra"
)

var wsTestCmd = &cobra.Command{
	Use:   "ws_test",
	Short: "Soak-test the transport and grade the CN105 byte stream",
	Long: `Listen on the connection for a fixed duration without transmitting, feed
everything received through the CN105 frame decoder, and report stream
quality: valid frames by type, checksum failures, and bytes skipped during
resynchronization.

Useful for debugging WebSocket bridge stability and noisy serial wiring
separately from the protocol engine. On a link shared with the original
remote controller frames arrive continuously; a clean result with zero
frames on a dedicated link just means nobody is talking.

Exit codes:
  0 - Test completed normally
  1 - Test failed (connection dropped before the duration elapsed)
  2 - Connection error`,
	RunE: runWsTest,
}

var wsTestDuration int

func init() {
	rootCmd.AddCommand(wsTestCmd)
	wsTestCmd.Flags().IntVar(&wsTestDuration, "duration", 30, "Test duration in seconds")
}

// wsTestStats accumulates stream quality counters for the soak run.
type wsTestStats struct {
	bytes        int
	frames       int
	framesByType map[byte]int
	checksumErrs int
	decodeErrs   int
	skipped      int
}

func (st *wsTestStats) report(elapsed time.Duration, passed bool) {
	fmt.Printf("\n--- Test Results ---\n")
	fmt.Printf("Duration: %v\n", elapsed.Round(time.Second))
	fmt.Printf("Bytes received: %d\n", st.bytes)
	fmt.Printf("Valid frames: %d\n", st.frames)
	for typ, n := range st.framesByType {
		fmt.Printf("  %s: %d\n", cn105.FormatPacketType(typ), n)
	}
	fmt.Printf("Checksum failures: %d\n", st.checksumErrs)
	fmt.Printf("Other decode errors: %d\n", st.decodeErrs)
	fmt.Printf("Bytes skipped before sync: %d\n", st.skipped)
	if passed {
		fmt.Printf("Result: PASSED (connection stable)\n")
	} else {
		fmt.Printf("Result: FAILED (connection error)\n")
	}
}

func runWsTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Mitsuaire - Transport Soak Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", wsTestDuration)

	readChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				readChan <- data
			}
		}
	}()

	decoder := cn105.NewDecoder()
	stats := wsTestStats{framesByType: make(map[byte]int)}
	start := time.Now()
	endTime := start.Add(time.Duration(wsTestDuration) * time.Second)

	fmt.Printf("Listening...\n\n")

	for time.Now().Before(endTime) {
		select {
		case data := <-readChan:
			stats.bytes += len(data)
			for _, b := range data {
				packet, decodeErr := decoder.DecodeByte(b)
				stats.skipped += decoder.TakeSkippedBytes()
				if decodeErr != nil {
					if errors.Is(decodeErr, cn105.ErrChecksumMismatch) {
						stats.checksumErrs++
					} else {
						stats.decodeErrs++
					}
					fmt.Printf("[%s] decode error: %v\n",
						time.Now().Format("15:04:05.000"), decodeErr)
					continue
				}
				if packet != nil {
					stats.frames++
					stats.framesByType[packet.Type()]++
					fmt.Printf("[%s] %s len=%d\n",
						time.Now().Format("15:04:05.000"), packet.TypeName(), packet.Length())
				}
			}

		case err := <-errChan:
			fmt.Printf("\n[%s] Connection error: %v\n",
				time.Now().Format("15:04:05.000"), err)
			stats.report(time.Since(start), false)
			os.Exit(1)

		case <-time.After(1 * time.Second):
			// Heartbeat so a silent link still shows progress.
			fmt.Printf("[%s] Listening... (%.0fs remaining, %d frames so far)\n",
				time.Now().Format("15:04:05.000"), time.Until(endTime).Seconds(), stats.frames)
		}
	}

	stats.report(time.Since(start), true)
	return nil
}
