package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"voiceorb/player"
	"voiceorb/ui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the chat (default)",
	Long: `Start the chat.

Type a question and press Enter. Spoken answers play as they arrive; Space
plays or pauses the selected answer and the arrow keys move the selection.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd)
	},
}

func runChat(cmd *cobra.Command) error {
	e, err := newEnv(cmd, player.DeviceSpeaker{})
	if err != nil {
		return err
	}
	defer e.close()

	vc := e.cfg.Visualizer
	m := ui.NewModel(e.ctrl, e.client, ui.Options{
		Voice:         e.cfg.Playback.Voice,
		Bars:          vc.Bars,
		Bands:         vc.Bands,
		Smoothing:     vc.Smoothing,
		FrameInterval: vc.FrameInterval(),
		SampleRate:    e.cfg.Playback.SampleRate,
		Logger:        e.log,
	})
	prog := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
