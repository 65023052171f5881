package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiodev-manager/internal/adapter/secondary/audio"
	"audiodev-manager/internal/domain"
	"audiodev-manager/internal/usecase"
)

func newTestModel(t *testing.T) (Model, usecase.AudioManagerUseCase) {
	t.Helper()
	sub := audio.NewMemorySubsystem()
	sub.AddDevice(audio.MemoryDevice{Name: "Speakers", Volume: 0.5})
	sub.AddDevice(audio.MemoryDevice{Name: "Headphones", Volume: 0.2, Muted: true})
	t.Cleanup(func() { _ = sub.Close() })

	engine := usecase.NewAudioManagerUseCase(sub)
	m := NewModel(engine)
	return step(t, m, m.Init()), engine
}

// step runs cmd synchronously and feeds its message back into the model.
func step(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	next, follow := m.Update(cmd())
	m = next.(Model)
	if follow != nil {
		next, _ = m.Update(follow())
		m = next.(Model)
	}
	return m
}

func press(t *testing.T, m Model, key tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(key)
	return step(t, next.(Model), cmd)
}

func TestInitLoadsDevices(t *testing.T) {
	m, _ := newTestModel(t)

	require.Len(t, m.devices, 2)
	assert.Equal(t, "Speakers", m.defaultName)
	assert.Equal(t, 50, m.devices[0].percent)
	assert.True(t, m.devices[1].muted)
	assert.Equal(t, "2 devices", m.status)
}

func TestVolumeKeys(t *testing.T) {
	m, engine := newTestModel(t)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	v, err := engine.Volume("Speakers")
	require.NoError(t, err)
	assert.Equal(t, 0.55, v)
	assert.Equal(t, 55, m.devices[0].percent)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.selected)
	for i := 0; i < 10; i++ {
		m = press(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	}
	v, err = engine.Volume("Headphones")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v, "volume stops at zero")
}

func TestMuteAndDefaultKeys(t *testing.T) {
	m, engine := newTestModel(t)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	muted, err := engine.MuteState("Speakers")
	require.NoError(t, err)
	assert.True(t, muted)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	def, err := engine.DefaultDeviceName()
	require.NoError(t, err)
	assert.Equal(t, "Headphones", def)
	assert.Equal(t, "Headphones", m.defaultName)
}

func TestVolumeChangeMsgUpdatesRow(t *testing.T) {
	m, _ := newTestModel(t)

	next, _ := m.Update(VolumeChangeMsg(domain.NewVolumeChangeEvent("Headphones", 0.9)))
	m = next.(Model)
	assert.Equal(t, 1, m.events)
	assert.Equal(t, 90, m.devices[1].percent)
	assert.Contains(t, m.View(), "Headphones -> 90%")
}

func TestVolumeChangeMsgRefreshesMute(t *testing.T) {
	m, engine := newTestModel(t)
	require.False(t, m.devices[0].muted)

	require.NoError(t, engine.SetMuteState("Speakers", true))
	next, cmd := m.Update(VolumeChangeMsg(domain.NewVolumeChangeEvent("Speakers", 0.5)))
	m = step(t, next.(Model), cmd)
	assert.True(t, m.devices[0].muted)

	require.NoError(t, engine.SetMuteState("Speakers", false))
	next, cmd = m.Update(VolumeChangeMsg(domain.NewVolumeChangeEvent("Speakers", 0.5)))
	m = step(t, next.(Model), cmd)
	assert.False(t, m.devices[0].muted)
}

func TestQuitKey(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestLoadErrorShowsStatus(t *testing.T) {
	m := NewModel(usecase.NewUnsupportedUseCase())
	m = step(t, m, m.Init())
	assert.Empty(t, m.devices)
	assert.Contains(t, m.status, "not supported")
	assert.Contains(t, m.View(), "(none)")
}

func TestTruncateAndBar(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "████░░░░", renderBar(50, 100, 8))
}
