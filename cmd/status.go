// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 the mitsuaire authors

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mitsuaire/mitsuaire/pkg/cn105"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Connect to the unit and print a one-shot status report",
	Long: `Perform the CN105 handshake, poll every report the unit knows, and print
the result.

Exit is non-zero if the handshake fails or the unit stops answering.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	session := cn105.NewSession(conn, cn105.SessionConfig{Logger: quietEngineLogger()})
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Connection: %s\n", connInfo)
	if err := session.Handshake(ctx); err != nil {
		return err
	}
	fmt.Printf("Handshake: ok\n\n")

	for _, mode := range []byte{
		cn105.InfoModeSettings,
		cn105.InfoModeRoomTemp,
		cn105.InfoModeStatus,
		cn105.InfoModeStandby,
	} {
		resp, err := session.Do(ctx, cn105.NewGetRequest(mode))
		if err != nil {
			return fmt.Errorf("poll %s: %w", cn105.FormatInfoMode(mode), err)
		}
		report, err := cn105.DecodeReport(resp)
		if err != nil {
			fmt.Printf("%s: undecodable (%v)\n", cn105.FormatInfoMode(mode), err)
			continue
		}
		printReport(report)
	}

	snap := session.Stats().Snapshot()
	fmt.Printf("\nLink: %d frames, %d checksum errors, %d retransmits\n",
		snap.FramesDecoded, snap.ChecksumErrors, snap.Retransmits)
	return nil
}

func printReport(r *cn105.Report) {
	switch r.Kind {
	case cn105.ReportSettings:
		s := r.Settings
		power := "off"
		if s.Power {
			power = "on"
		}
		fmt.Printf("Settings:  power %s, mode %s, target %.1f C, fan %s, vane %s, widevane %s\n",
			power, s.Mode, s.TargetTemp, s.Fan, s.Vane, s.WideVane)
		if r.ISee {
			fmt.Printf("           i-see sensor active\n")
		}
	case cn105.ReportRoomTemp:
		fmt.Printf("Room:      %.1f C\n", r.RoomTemp)
	case cn105.ReportStatus:
		fmt.Printf("Status:    operating=%v compressor=%d Hz\n", r.Operating, r.CompressorFreq)
	case cn105.ReportStandby:
		fmt.Printf("Standby:   %v\n", r.Standby)
	default:
		fmt.Printf("Info 0x%02X: % X\n", r.InfoMode, r.Raw)
	}
}
