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

var (
	setPower    string
	setMode     string
	setTemp     float64
	setFan      string
	setVane     string
	setWideVane string
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Apply a one-shot settings change",
	Long: `Perform the CN105 handshake, transmit a settings change covering exactly
the flags given, and poll the unit to confirm the result.

Values follow the unit's vocabulary:
  --power    on | off
  --mode     Heat | Dry | Cool | Fan | Auto
  --temp     16-31 (degrees Celsius, half degrees allowed)
  --fan      Auto | Quiet | Low | Med | High | VeryHigh
  --vane     Auto | 1-5 | Swing
  --widevane FullLeft | Left | Mid | Right | FullRight | Split | Swing`,
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.Flags().StringVar(&setPower, "power", "", "Power state (on/off)")
	setCmd.Flags().StringVar(&setMode, "mode", "", "Operating mode")
	setCmd.Flags().Float64Var(&setTemp, "temp", 0, "Target temperature in Celsius")
	setCmd.Flags().StringVar(&setFan, "fan", "", "Fan speed")
	setCmd.Flags().StringVar(&setVane, "vane", "", "Vane position")
	setCmd.Flags().StringVar(&setWideVane, "widevane", "", "Wide vane position")
}

func deltaFromFlags(cmd *cobra.Command) (cn105.SettingsDelta, error) {
	var delta cn105.SettingsDelta

	switch setPower {
	case "":
	case "on":
		v := true
		delta.Power = &v
	case "off":
		v := false
		delta.Power = &v
	default:
		return delta, fmt.Errorf("invalid --power %q (use on/off)", setPower)
	}
	if setMode != "" {
		v := cn105.Mode(setMode)
		delta.Mode = &v
	}
	if cmd.Flags().Changed("temp") {
		v := setTemp
		delta.TargetTemp = &v
	}
	if setFan != "" {
		v := cn105.FanSpeed(setFan)
		delta.Fan = &v
	}
	if setVane != "" {
		v := cn105.Vane(setVane)
		delta.Vane = &v
	}
	if setWideVane != "" {
		v := cn105.WideVane(setWideVane)
		delta.WideVane = &v
	}

	if delta.IsEmpty() {
		return delta, fmt.Errorf("no settings given; see --help for flags")
	}
	return delta, delta.Validate()
}

func runSet(cmd *cobra.Command, args []string) error {
	delta, err := deltaFromFlags(cmd)
	if err != nil {
		return err
	}
	req, err := cn105.NewSetRequest(delta)
	if err != nil {
		return err
	}

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

	if _, err := session.Do(ctx, req); err != nil {
		return fmt.Errorf("set command: %w", err)
	}
	fmt.Printf("Acknowledged\n")

	// Confirm against the unit's own report rather than trusting the ack.
	resp, err := session.Do(ctx, cn105.NewGetRequest(cn105.InfoModeSettings))
	if err != nil {
		return fmt.Errorf("confirmation poll: %w", err)
	}
	report, err := cn105.DecodeReport(resp)
	if err != nil {
		return fmt.Errorf("confirmation decode: %w", err)
	}
	printReport(report)
	return nil
}
