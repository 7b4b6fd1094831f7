// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 the mitsuaire authors

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mitsuaire/mitsuaire/pkg/cn105"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive heat pump control dashboard",
	Long: `Full-screen terminal dashboard for one heat pump.

Shows desired and observed settings side by side, room temperature and
operating status, link statistics, and a scrolling event log. Settings
changes go through the same reconcile path as the serve daemon, so the
observed column only moves once the unit itself confirms.

Key bindings:
  p          toggle power
  m / M      cycle operating mode forward/back
  f / F      cycle fan speed
  v / V      cycle vane position
  w / W      cycle wide vane position
  t          enter a target temperature
  q, ctrl+c  quit`,
	RunE: runTui,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type tuiTickMsg time.Time

type tuiEventMsg cn105.Event

type tuiEventsClosedMsg struct{}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

type tuiLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type tuiModel struct {
	engine   *cn105.Engine
	sub      *cn105.Subscription
	connInfo string

	state cn105.EngineState
	stats cn105.StatsSnapshot

	tempInput textinput.Model
	editing   bool

	log           []tuiLogEntry
	maxLogEntries int

	statusLine string
	width      int
	height     int
	quitting   bool
}

// Cycle orders for the mode/fan/vane keys.
var (
	tuiModes = []cn105.Mode{cn105.ModeHeat, cn105.ModeDry, cn105.ModeCool, cn105.ModeFan, cn105.ModeAuto}
	tuiFans  = []cn105.FanSpeed{cn105.FanAuto, cn105.FanQuiet, cn105.FanLow, cn105.FanMed, cn105.FanHigh, cn105.FanVeryHigh}
	tuiVanes = []cn105.Vane{cn105.VaneAuto, cn105.VanePosition1, cn105.VanePosition2, cn105.VanePosition3, cn105.VanePosition4, cn105.VanePosition5, cn105.VaneSwing}
	tuiWides = []cn105.WideVane{cn105.WideVaneFullLeft, cn105.WideVaneLeft, cn105.WideVaneMid, cn105.WideVaneRight, cn105.WideVaneFullRight, cn105.WideVaneSplit, cn105.WideVaneSwing}
)

func initialTuiModel(engine *cn105.Engine, connInfo string) tuiModel {
	ti := textinput.New()
	ti.Placeholder = "21.5"
	ti.CharLimit = 4
	ti.Width = 6

	return tuiModel{
		engine:        engine,
		sub:           engine.Subscribe(),
		connInfo:      connInfo,
		state:         engine.State(),
		tempInput:     ti,
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(
		tuiTickCmd(),
		waitForEvent(m.sub),
		tea.EnterAltScreen,
	)
}

func tuiTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tuiTickMsg(t)
	})
}

func waitForEvent(sub *cn105.Subscription) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub.Events()
		if !ok {
			return tuiEventsClosedMsg{}
		}
		return tuiEventMsg(ev)
	}
}

//////////////////////////////////////////////////////////////
// Update
//////////////////////////////////////////////////////////////

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			return m.updateTempInput(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tuiTickMsg:
		m.state = m.engine.State()
		m.stats = m.engine.Stats().Snapshot()
		return m, tuiTickCmd()

	case tuiEventMsg:
		m.applyEvent(cn105.Event(msg))
		m.state = m.engine.State()
		return m, waitForEvent(m.sub)

	case tuiEventsClosedMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "p":
		v := !m.state.Desired.Power
		m.setDesired(cn105.SettingsDelta{Power: &v})

	case "m":
		v := cycleMode(m.state.Desired.Mode, 1)
		m.setDesired(cn105.SettingsDelta{Mode: &v})
	case "M":
		v := cycleMode(m.state.Desired.Mode, -1)
		m.setDesired(cn105.SettingsDelta{Mode: &v})

	case "f":
		v := cycleFan(m.state.Desired.Fan, 1)
		m.setDesired(cn105.SettingsDelta{Fan: &v})
	case "F":
		v := cycleFan(m.state.Desired.Fan, -1)
		m.setDesired(cn105.SettingsDelta{Fan: &v})

	case "v":
		v := cycleVane(m.state.Desired.Vane, 1)
		m.setDesired(cn105.SettingsDelta{Vane: &v})
	case "V":
		v := cycleVane(m.state.Desired.Vane, -1)
		m.setDesired(cn105.SettingsDelta{Vane: &v})

	case "w":
		v := cycleWide(m.state.Desired.WideVane, 1)
		m.setDesired(cn105.SettingsDelta{WideVane: &v})
	case "W":
		v := cycleWide(m.state.Desired.WideVane, -1)
		m.setDesired(cn105.SettingsDelta{WideVane: &v})

	case "t":
		m.editing = true
		m.tempInput.SetValue(fmt.Sprintf("%g", m.state.Desired.TargetTemp))
		m.tempInput.Focus()
		return m, textinput.Blink
	}

	return m, nil
}

func (m tuiModel) updateTempInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.editing = false
		m.tempInput.Blur()
		value, err := strconv.ParseFloat(strings.TrimSpace(m.tempInput.Value()), 64)
		if err != nil {
			m.statusLine = fmt.Sprintf("invalid temperature %q", m.tempInput.Value())
			return m, nil
		}
		m.setDesired(cn105.SettingsDelta{TargetTemp: &value})
		return m, nil

	case "esc":
		m.editing = false
		m.tempInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.tempInput, cmd = m.tempInput.Update(msg)
	return m, cmd
}

func (m *tuiModel) setDesired(delta cn105.SettingsDelta) {
	if err := m.engine.SetDesired(delta); err != nil {
		m.statusLine = err.Error()
		return
	}
	m.statusLine = ""
	m.state = m.engine.State()
}

func (m *tuiModel) applyEvent(ev cn105.Event) {
	switch ev.Kind {
	case cn105.EventObservedChange:
		m.addLogEntry(fmt.Sprintf("observed %s: %v -> %v", ev.Field, ev.Old, ev.New), false)
	case cn105.EventDesiredChange:
		m.addLogEntry(fmt.Sprintf("desired %s: %v -> %v", ev.Field, ev.Old, ev.New), false)
	case cn105.EventConnectionChange:
		m.addLogEntry(fmt.Sprintf("connection: %s", ev.State), ev.State == cn105.StateFaulted)
	case cn105.EventCommandResolved:
		switch ev.Outcome {
		case cn105.OutcomeApplied:
			m.addLogEntry("command applied", false)
		case cn105.OutcomeSuperseded:
			m.addLogEntry("command superseded by newer change", false)
		case cn105.OutcomeFailed:
			m.addLogEntry(fmt.Sprintf("command FAILED: %v", ev.Err), true)
		}
	}
}

func (m *tuiModel) addLogEntry(message string, isError bool) {
	m.log = append(m.log, tuiLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

func cycleMode(cur cn105.Mode, dir int) cn105.Mode {
	for i, v := range tuiModes {
		if v == cur {
			return tuiModes[(i+dir+len(tuiModes))%len(tuiModes)]
		}
	}
	return tuiModes[0]
}

func cycleFan(cur cn105.FanSpeed, dir int) cn105.FanSpeed {
	for i, v := range tuiFans {
		if v == cur {
			return tuiFans[(i+dir+len(tuiFans))%len(tuiFans)]
		}
	}
	return tuiFans[0]
}

func cycleVane(cur cn105.Vane, dir int) cn105.Vane {
	for i, v := range tuiVanes {
		if v == cur {
			return tuiVanes[(i+dir+len(tuiVanes))%len(tuiVanes)]
		}
	}
	return tuiVanes[0]
}

func cycleWide(cur cn105.WideVane, dir int) cn105.WideVane {
	for i, v := range tuiWides {
		if v == cur {
			return tuiWides[(i+dir+len(tuiWides))%len(tuiWides)]
		}
	}
	return tuiWides[0]
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m tuiModel) View() string {
	if m.quitting {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Width(11)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	staleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var b strings.Builder

	connected := "disconnected"
	connStyle := errorStyle
	if m.state.Connected {
		connected = "connected"
		connStyle = valueStyle
	}
	b.WriteString(titleStyle.Render("Mitsuaire"))
	b.WriteString("  ")
	b.WriteString(headerStyle.Render(m.connInfo))
	b.WriteString("  ")
	b.WriteString(connStyle.Render(connected))
	b.WriteString("\n\n")

	// Desired and observed settings side by side. A value whose observed
	// side has not caught up yet renders in the stale color.
	settingsRow := func(label string, desired, observed string) string {
		style := valueStyle
		if desired != observed {
			style = staleStyle
		}
		return fmt.Sprintf("%s %s %s\n",
			labelStyle.Render(label),
			style.Render(fmt.Sprintf("%-10s", desired)),
			headerStyle.Render(observed))
	}
	onOff := func(v bool) string {
		if v {
			return "on"
		}
		return "off"
	}

	var settings strings.Builder
	settings.WriteString(fmt.Sprintf("%s %s %s\n",
		labelStyle.Render(""),
		headerStyle.Render(fmt.Sprintf("%-10s", "desired")),
		headerStyle.Render("observed")))
	settings.WriteString(settingsRow("power", onOff(m.state.Desired.Power), onOff(m.state.Observed.Power)))
	settings.WriteString(settingsRow("mode", string(m.state.Desired.Mode), string(m.state.Observed.Mode)))
	if m.editing {
		settings.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("target"), m.tempInput.View()))
	} else {
		settings.WriteString(settingsRow("target",
			fmt.Sprintf("%.1f C", m.state.Desired.TargetTemp),
			fmt.Sprintf("%.1f C", m.state.Observed.TargetTemp)))
	}
	settings.WriteString(settingsRow("fan", string(m.state.Desired.Fan), string(m.state.Observed.Fan)))
	settings.WriteString(settingsRow("vane", string(m.state.Desired.Vane), string(m.state.Observed.Vane)))
	settings.WriteString(settingsRow("widevane", string(m.state.Desired.WideVane), string(m.state.Observed.WideVane)))

	var unit strings.Builder
	unit.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("room"), valueStyle.Render(fmt.Sprintf("%.1f C", m.state.RoomTemp))))
	unit.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("operating"), valueStyle.Render(onOff(m.state.Operating))))
	unit.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("compressor"), valueStyle.Render(fmt.Sprintf("%d Hz", m.state.CompressorFreq))))
	unit.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("standby"), valueStyle.Render(onOff(m.state.Standby))))
	unit.WriteString("\n")
	unit.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("frames"), valueStyle.Render(fmt.Sprintf("%d", m.stats.FramesDecoded))))
	unit.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("cksum errs"), valueStyle.Render(fmt.Sprintf("%d", m.stats.ChecksumErrors))))
	unit.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("retransmit"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Retransmits))))

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(settings.String()),
		" ",
		boxStyle.Render(unit.String())))
	b.WriteString("\n")

	// Event log, newest last.
	logLines := 8
	start := 0
	if len(m.log) > logLines {
		start = len(m.log) - logLines
	}
	var logView strings.Builder
	for _, entry := range m.log[start:] {
		line := fmt.Sprintf("%s %s", entry.timestamp.Format("15:04:05"), entry.message)
		if entry.isError {
			line = errorStyle.Render(line)
		} else {
			line = headerStyle.Render(line)
		}
		logView.WriteString(line + "\n")
	}
	if logView.Len() > 0 {
		b.WriteString(boxStyle.Width(m.width - 4).Render(strings.TrimRight(logView.String(), "\n")))
		b.WriteString("\n")
	}

	if m.statusLine != "" {
		b.WriteString(errorStyle.Render(m.statusLine))
		b.WriteString("\n")
	}
	if m.editing {
		b.WriteString(headerStyle.Render("enter: apply  esc: cancel"))
	} else {
		b.WriteString(headerStyle.Render("p power  m mode  f fan  v vane  w widevane  t temp  q quit"))
	}
	b.WriteString("\n")

	return b.String()
}

//////////////////////////////////////////////////////////////
// Command
//////////////////////////////////////////////////////////////

func runTui(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	engine := cn105.NewEngine(conn, cn105.EngineConfig{Logger: quietEngineLogger()})
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	p := tea.NewProgram(initialTuiModel(engine, connInfo))
	_, err = p.Run()
	return err
}
