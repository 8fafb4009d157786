package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// FlashDuration is how long a flash notice stays in the footer.
const FlashDuration = 3 * time.Second

// ClearFlashMsg clears the flash notice it was scheduled for.
type ClearFlashMsg struct {
	Seq int
}

// clearFlashCmd fires after a delay to clear flash notice seq.
func clearFlashCmd(seq int) tea.Cmd {
	return tea.Tick(FlashDuration, func(time.Time) tea.Msg {
		return ClearFlashMsg{Seq: seq}
	})
}
