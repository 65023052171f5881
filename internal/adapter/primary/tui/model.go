package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"audiodev-manager/internal/domain"
	"audiodev-manager/internal/usecase"
)

const volumeStep = 5

// deviceRow is one line of the device table.
type deviceRow struct {
	name      string
	percent   int
	hasVolume bool
	muted     bool
	hasMute   bool
}

// Model is the state of the watch screen.
type Model struct {
	engine  usecase.AudioManagerUseCase
	volumes *domain.VolumeService

	devices     []deviceRow
	defaultName string
	selected    int

	events    int
	lastEvent string
	status    string

	width  int
	height int
}

// NewModel creates a model bound to the engine. Devices load on Init.
func NewModel(engine usecase.AudioManagerUseCase) Model {
	return Model{
		engine:  engine,
		volumes: domain.NewVolumeService(),
		status:  "loading devices...",
	}
}

// VolumeChangeMsg carries a monitoring event into the program.
type VolumeChangeMsg domain.VolumeChangeEvent

// StatusMsg replaces the status line.
type StatusMsg string

type devicesLoadedMsg struct {
	devices     []deviceRow
	defaultName string
	err         error
}

// muteReadMsg follows an event; the event itself only carries volume.
type muteReadMsg struct {
	name  string
	muted bool
	err   error
}

type actionDoneMsg struct {
	what string
	err  error
}

// Init loads the device table.
func (m Model) Init() tea.Cmd {
	return loadDevices(m.engine, m.volumes)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case devicesLoadedMsg:
		m.applyDevices(msg)
	case VolumeChangeMsg:
		ev := domain.VolumeChangeEvent(msg)
		m.applyEvent(ev)
		return m, readMute(m.engine, ev.Device)
	case muteReadMsg:
		m.applyMute(msg)
	case StatusMsg:
		m.status = string(msg)
	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s: %v", msg.what, msg.err)
			return m, nil
		}
		m.status = msg.what
		return m, loadDevices(m.engine, m.volumes)
	}
	return m, nil
}

// View renders the device table.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString("┌─ Output devices ─────────────────────────────────────┐\n")
	if len(m.devices) == 0 {
		b.WriteString("│ (none)                                               │\n")
	}
	for i, d := range m.devices {
		cursor := " "
		if i == m.selected {
			cursor = ">"
		}
		marker := " "
		if d.name == m.defaultName {
			marker = "*"
		}
		level := "  n/a          "
		if d.hasVolume {
			level = fmt.Sprintf("[%s] %3d%%", renderBar(d.percent, 100, 8), d.percent)
		}
		mute := ""
		if d.hasMute && d.muted {
			mute = " muted"
		}
		fmt.Fprintf(&b, "│%s%s %-24s %s%-6s │\n", cursor, marker, truncate(d.name, 24), level, mute)
	}
	b.WriteString("├──────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(&b, "│ Events: %-5d %-38s │\n", m.events, truncate(m.lastEvent, 38))
	fmt.Fprintf(&b, "│ %-52s │\n", truncate(m.status, 52))
	b.WriteString("│ ↑/↓:Select  ←/→:Volume  m:Mute  d:Default  q:Quit    │\n")
	b.WriteString("└──────────────────────────────────────────────────────┘\n")
	return b.String()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.devices)-1 {
			m.selected++
		}
	case "left", "h":
		return m, m.nudgeVolume(-volumeStep)
	case "right", "l":
		return m, m.nudgeVolume(volumeStep)
	case "m":
		d, ok := m.current()
		if !ok || !d.hasMute {
			return m, nil
		}
		return m, setMute(m.engine, d.name, !d.muted)
	case "d":
		d, ok := m.current()
		if !ok {
			return m, nil
		}
		return m, switchDefault(m.engine, d.name)
	case "r":
		return m, loadDevices(m.engine, m.volumes)
	}
	return m, nil
}

func (m Model) current() (deviceRow, bool) {
	if m.selected < 0 || m.selected >= len(m.devices) {
		return deviceRow{}, false
	}
	return m.devices[m.selected], true
}

func (m Model) nudgeVolume(delta int) tea.Cmd {
	d, ok := m.current()
	if !ok || !d.hasVolume {
		return nil
	}
	percent := d.percent + delta
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return setVolume(m.engine, d.name, m.volumes.FromPercent(percent))
}

func (m *Model) applyDevices(msg devicesLoadedMsg) {
	if msg.err != nil {
		m.status = msg.err.Error()
		return
	}
	m.devices = msg.devices
	m.defaultName = msg.defaultName
	if m.selected >= len(m.devices) {
		m.selected = len(m.devices) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
	if m.status == "loading devices..." {
		m.status = fmt.Sprintf("%d devices", len(m.devices))
	}
}

func (m *Model) applyMute(msg muteReadMsg) {
	if msg.err != nil {
		return
	}
	for i := range m.devices {
		if m.devices[i].name == msg.name {
			m.devices[i].muted = msg.muted
			m.devices[i].hasMute = true
			return
		}
	}
}

func (m *Model) applyEvent(ev domain.VolumeChangeEvent) {
	m.events++
	percent := m.volumes.ToPercent(ev.Volume)
	m.lastEvent = fmt.Sprintf("%s -> %d%%", ev.Device, percent)
	for i := range m.devices {
		if m.devices[i].name == ev.Device {
			m.devices[i].percent = percent
			m.devices[i].hasVolume = true
			return
		}
	}
}

func loadDevices(engine usecase.AudioManagerUseCase, volumes *domain.VolumeService) tea.Cmd {
	return func() tea.Msg {
		names, err := engine.ListOutputDeviceNames()
		if err != nil {
			return devicesLoadedMsg{err: err}
		}
		def, _ := engine.DefaultDeviceName()
		rows := make([]deviceRow, 0, len(names))
		for _, name := range names {
			row := deviceRow{name: name}
			if v, err := engine.Volume(name); err == nil {
				row.percent = volumes.ToPercent(v)
				row.hasVolume = true
			}
			if muted, err := engine.MuteState(name); err == nil {
				row.muted = muted
				row.hasMute = true
			}
			rows = append(rows, row)
		}
		return devicesLoadedMsg{devices: rows, defaultName: def}
	}
}

func readMute(engine usecase.AudioManagerUseCase, name string) tea.Cmd {
	return func() tea.Msg {
		muted, err := engine.MuteState(name)
		return muteReadMsg{name: name, muted: muted, err: err}
	}
}

func setVolume(engine usecase.AudioManagerUseCase, name string, volume float64) tea.Cmd {
	return func() tea.Msg {
		err := engine.SetVolume(name, volume)
		return actionDoneMsg{what: fmt.Sprintf("%s volume %.2f", name, volume), err: err}
	}
}

func setMute(engine usecase.AudioManagerUseCase, name string, muted bool) tea.Cmd {
	return func() tea.Msg {
		err := engine.SetMuteState(name, muted)
		return actionDoneMsg{what: fmt.Sprintf("%s muted=%t", name, muted), err: err}
	}
}

func switchDefault(engine usecase.AudioManagerUseCase, name string) tea.Cmd {
	return func() tea.Msg {
		err := engine.SwitchDefaultDevice(name)
		return actionDoneMsg{what: "default -> " + name, err: err}
	}
}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
