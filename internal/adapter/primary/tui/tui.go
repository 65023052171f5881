package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"audiodev-manager/internal/domain"
	"audiodev-manager/internal/logging"
	"audiodev-manager/internal/usecase"
)

// Run shows the watch screen until the user quits. Volume events are pushed into the
// program from the monitor's dispatch goroutine.
func Run(engine usecase.AudioManagerUseCase, opts ...tea.ProgramOption) error {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	p := tea.NewProgram(NewModel(engine), opts...)

	if _, err := engine.StartVolumeMonitoring(func(ev domain.VolumeChangeEvent) {
		p.Send(VolumeChangeMsg(ev))
	}); err != nil {
		logging.Warnf("live updates disabled: %v", err)
		go p.Send(StatusMsg("live updates disabled: " + err.Error()))
	} else {
		defer func() {
			if err := engine.StopVolumeMonitoring(); err != nil {
				logging.Warnf("stop monitoring: %v", err)
			}
		}()
	}

	_, err := p.Run()
	return err
}
