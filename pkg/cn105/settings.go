// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import "fmt"

// Mode is the unit's operating mode.
type Mode string

// Operating modes. ModeUnknown is the decode sentinel for byte codes this
// package does not know about; unit firmware revisions introduce
// undocumented values and decoding must not fail on them.
const (
	ModeHeat    Mode = "Heat"
	ModeDry     Mode = "Dry"
	ModeCool    Mode = "Cool"
	ModeFan     Mode = "Fan"
	ModeAuto    Mode = "Auto"
	ModeUnknown Mode = "Unknown"
)

// FanSpeed is the fan speed setting.
type FanSpeed string

// Fan speeds.
const (
	FanAuto     FanSpeed = "Auto"
	FanQuiet    FanSpeed = "Quiet"
	FanLow      FanSpeed = "Low"
	FanMed      FanSpeed = "Med"
	FanHigh     FanSpeed = "High"
	FanVeryHigh FanSpeed = "VeryHigh"
	FanUnknown  FanSpeed = "Unknown"
)

// Vane is the horizontal vane (vertical airflow) position.
type Vane string

// Vane positions. Position1 is the most horizontal airflow, Position5 the
// most vertical.
const (
	VaneAuto      Vane = "Auto"
	VanePosition1 Vane = "1"
	VanePosition2 Vane = "2"
	VanePosition3 Vane = "3"
	VanePosition4 Vane = "4"
	VanePosition5 Vane = "5"
	VaneSwing     Vane = "Swing"
	VaneUnknown   Vane = "Unknown"
)

// WideVane is the wide vane (horizontal airflow) position.
type WideVane string

// Wide vane positions.
const (
	WideVaneFullLeft  WideVane = "FullLeft"
	WideVaneLeft      WideVane = "Left"
	WideVaneMid       WideVane = "Mid"
	WideVaneRight     WideVane = "Right"
	WideVaneFullRight WideVane = "FullRight"
	WideVaneSplit     WideVane = "Split"
	WideVaneSwing     WideVane = "Swing"
	WideVaneUnknown   WideVane = "Unknown"
)

// Value <-> byte code tables. Decode lookups that miss fall back to the
// Unknown sentinel rather than erroring.
var (
	modeCodes = map[Mode]byte{
		ModeHeat: 0x01,
		ModeDry:  0x02,
		ModeCool: 0x03,
		ModeFan:  0x07,
		ModeAuto: 0x08,
	}
	fanCodes = map[FanSpeed]byte{
		FanAuto:     0x00,
		FanQuiet:    0x01,
		FanLow:      0x02,
		FanMed:      0x03,
		FanHigh:     0x05,
		FanVeryHigh: 0x06,
	}
	vaneCodes = map[Vane]byte{
		VaneAuto:      0x00,
		VanePosition1: 0x01,
		VanePosition2: 0x02,
		VanePosition3: 0x03,
		VanePosition4: 0x04,
		VanePosition5: 0x05,
		VaneSwing:     0x07,
	}
	wideVaneCodes = map[WideVane]byte{
		WideVaneFullLeft:  0x01,
		WideVaneLeft:      0x02,
		WideVaneMid:       0x03,
		WideVaneRight:     0x04,
		WideVaneFullRight: 0x05,
		WideVaneSplit:     0x08,
		WideVaneSwing:     0x0C,
	}

	modeNames     = invertModeCodes()
	fanNames      = invertFanCodes()
	vaneNames     = invertVaneCodes()
	wideVaneNames = invertWideVaneCodes()
)

func invertModeCodes() map[byte]Mode {
	m := make(map[byte]Mode, len(modeCodes))
	for k, v := range modeCodes {
		m[v] = k
	}
	return m
}

func invertFanCodes() map[byte]FanSpeed {
	m := make(map[byte]FanSpeed, len(fanCodes))
	for k, v := range fanCodes {
		m[v] = k
	}
	return m
}

func invertVaneCodes() map[byte]Vane {
	m := make(map[byte]Vane, len(vaneCodes))
	for k, v := range vaneCodes {
		m[v] = k
	}
	return m
}

func invertWideVaneCodes() map[byte]WideVane {
	m := make(map[byte]WideVane, len(wideVaneCodes))
	for k, v := range wideVaneCodes {
		m[v] = k
	}
	return m
}

func decodeMode(b byte) Mode {
	if m, ok := modeNames[b]; ok {
		return m
	}
	return ModeUnknown
}

func decodeFan(b byte) FanSpeed {
	if f, ok := fanNames[b]; ok {
		return f
	}
	return FanUnknown
}

func decodeVane(b byte) Vane {
	if v, ok := vaneNames[b]; ok {
		return v
	}
	return VaneUnknown
}

func decodeWideVane(b byte) WideVane {
	if w, ok := wideVaneNames[b]; ok {
		return w
	}
	return WideVaneUnknown
}

// Settings is the unit's complete semantic settings record. Target
// temperature is in degrees Celsius at half-degree resolution.
type Settings struct {
	Power      bool     `json:"poweron"`
	Mode       Mode     `json:"mode"`
	TargetTemp float64  `json:"desired_temperature_c"`
	Fan        FanSpeed `json:"fan_speed"`
	Vane       Vane     `json:"vane"`
	WideVane   WideVane `json:"widevane"`
}

// SettingsDelta is a partial settings change. Nil fields are left
// untouched on the unit: the set request flags only the present fields.
type SettingsDelta struct {
	Power      *bool     `json:"poweron,omitempty"`
	Mode       *Mode     `json:"mode,omitempty"`
	TargetTemp *float64  `json:"desired_temperature_c,omitempty"`
	Fan        *FanSpeed `json:"fan_speed,omitempty"`
	Vane       *Vane     `json:"vane,omitempty"`
	WideVane   *WideVane `json:"widevane,omitempty"`
}

// IsEmpty reports whether the delta carries no fields.
func (d SettingsDelta) IsEmpty() bool {
	return d.Power == nil && d.Mode == nil && d.TargetTemp == nil &&
		d.Fan == nil && d.Vane == nil && d.WideVane == nil
}

// Validate checks every present field against the unit's supported values.
func (d SettingsDelta) Validate() error {
	if d.Mode != nil {
		if _, ok := modeCodes[*d.Mode]; !ok {
			return fmt.Errorf("%w: mode %q", ErrValueOutOfRange, *d.Mode)
		}
	}
	if d.TargetTemp != nil {
		t := *d.TargetTemp
		if t < MinTargetTemp || t > MaxTargetTemp {
			return fmt.Errorf("%w: target temperature %.1f (supported %.0f-%.0f)", ErrValueOutOfRange, t, MinTargetTemp, MaxTargetTemp)
		}
	}
	if d.Fan != nil {
		if _, ok := fanCodes[*d.Fan]; !ok {
			return fmt.Errorf("%w: fan speed %q", ErrValueOutOfRange, *d.Fan)
		}
	}
	if d.Vane != nil {
		if _, ok := vaneCodes[*d.Vane]; !ok {
			return fmt.Errorf("%w: vane %q", ErrValueOutOfRange, *d.Vane)
		}
	}
	if d.WideVane != nil {
		if _, ok := wideVaneCodes[*d.WideVane]; !ok {
			return fmt.Errorf("%w: wide vane %q", ErrValueOutOfRange, *d.WideVane)
		}
	}
	return nil
}

// Apply returns a copy of s with the delta's present fields applied.
func (d SettingsDelta) Apply(s Settings) Settings {
	if d.Power != nil {
		s.Power = *d.Power
	}
	if d.Mode != nil {
		s.Mode = *d.Mode
	}
	if d.TargetTemp != nil {
		s.TargetTemp = *d.TargetTemp
	}
	if d.Fan != nil {
		s.Fan = *d.Fan
	}
	if d.Vane != nil {
		s.Vane = *d.Vane
	}
	if d.WideVane != nil {
		s.WideVane = *d.WideVane
	}
	return s
}

// Merge returns d overlaid with newer: fields present in newer supersede
// the same fields in d.
func (d SettingsDelta) Merge(newer SettingsDelta) SettingsDelta {
	if newer.Power != nil {
		d.Power = newer.Power
	}
	if newer.Mode != nil {
		d.Mode = newer.Mode
	}
	if newer.TargetTemp != nil {
		d.TargetTemp = newer.TargetTemp
	}
	if newer.Fan != nil {
		d.Fan = newer.Fan
	}
	if newer.Vane != nil {
		d.Vane = newer.Vane
	}
	if newer.WideVane != nil {
		d.WideVane = newer.WideVane
	}
	return d
}

// Diff returns the delta that would change from into to. An empty delta
// means the two records agree.
func Diff(from, to Settings) SettingsDelta {
	var d SettingsDelta
	if from.Power != to.Power {
		v := to.Power
		d.Power = &v
	}
	if from.Mode != to.Mode {
		v := to.Mode
		d.Mode = &v
	}
	if from.TargetTemp != to.TargetTemp {
		v := to.TargetTemp
		d.TargetTemp = &v
	}
	if from.Fan != to.Fan {
		v := to.Fan
		d.Fan = &v
	}
	if from.Vane != to.Vane {
		v := to.Vane
		d.Vane = &v
	}
	if from.WideVane != to.WideVane {
		v := to.WideVane
		d.WideVane = &v
	}
	return d
}
