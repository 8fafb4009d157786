package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/VlasiukRV/realtime-transcription/internal/segment"
	"github.com/VlasiukRV/realtime-transcription/internal/session"
	"github.com/VlasiukRV/realtime-transcription/internal/stream"
	"github.com/VlasiukRV/realtime-transcription/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusLanguages PanelFocus = iota
	FocusTranscript
)

// activity collects session events between renders.
type activity struct {
	added      int
	nowPlaying *segment.Segment
}

func (a *activity) StatusChanged(string)          {}
func (a *activity) SegmentAdded(*segment.Segment) { a.added++ }

func (a *activity) PlaybackChanged(seg *segment.Segment) {
	switch {
	case seg.State == segment.Playing:
		a.nowPlaying = seg
	case a.nowPlaying == seg:
		a.nowPlaying = nil
	}
}

// Model is the root bubbletea model for the captions TUI.
type Model struct {
	session  *session.Session
	server   string
	activity *activity

	// UI state
	focusedPanel     PanelFocus
	width            int
	height           int
	transcriptScroll int
	transcriptLive   bool
	seen             int // segments added when the user left live mode
	langCursor       int
	showOriginal     bool

	// Flash notice
	flash    string
	flashSeq int
}

// New creates a model driving s. server is shown in the header.
func New(s *session.Session, server string) Model {
	a := &activity{}
	s.SetListener(a)
	return Model{
		session:        s,
		server:         server,
		activity:       a,
		transcriptLive: true,
		focusedPanel:   FocusTranscript,
	}
}

// Init starts the session: catalog fetch and the initial language.
func (m Model) Init() tea.Cmd {
	return m.session.Init()
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case ClearFlashMsg:
		if msg.Seq == m.flashSeq {
			m.flash = ""
		}
		return m, nil
	}

	cmd := m.session.Update(msg)
	if n := len(m.session.Languages()); m.langCursor >= n {
		m.langCursor = max(0, n-1)
	}
	if m.transcriptLive {
		m.scrollToBottom()
	}
	return m, cmd
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		m.session.Dispose()
		return m, tea.Quit

	case KeySpace:
		m.session.TogglePause()
		if m.session.Paused() {
			return m.setFlash("Paused: new captions are dropped")
		}
		return m.setFlash("Resumed")

	case KeyTab:
		if m.focusedPanel == FocusLanguages {
			m.focusedPanel = FocusTranscript
		} else {
			m.focusedPanel = FocusLanguages
		}
		return m, nil

	case KeyJ:
		if m.focusedPanel == FocusLanguages && m.langCursor < len(m.session.Languages())-1 {
			m.langCursor++
		}
		return m, nil

	case KeyK:
		if m.focusedPanel == FocusLanguages && m.langCursor > 0 {
			m.langCursor--
		}
		return m, nil

	case KeyEnter:
		langs := m.session.Languages()
		if m.focusedPanel != FocusLanguages || m.langCursor >= len(langs) {
			return m, nil
		}
		code := langs[m.langCursor].Code
		cmd := m.session.SelectLanguage(code)
		var flash tea.Cmd
		m, flash = m.setFlash("Switching to " + code + "...")
		return m, tea.Batch(cmd, flash)

	case KeyUp:
		if m.focusedPanel == FocusTranscript {
			if m.transcriptLive {
				m.seen = m.activity.added
			}
			m.transcriptLive = false
			if m.transcriptScroll > 0 {
				m.transcriptScroll--
			}
		}
		return m, nil

	case KeyDown:
		if m.focusedPanel == FocusTranscript {
			maxScroll := m.maxTranscriptScroll()
			m.transcriptScroll++
			if m.transcriptScroll >= maxScroll {
				m.transcriptScroll = maxScroll
				m.transcriptLive = true
			}
		}
		return m, nil

	case KeyEnd:
		m.transcriptLive = true
		m.scrollToBottom()
		return m, nil

	case KeyClear:
		m.session.Clear()
		m.transcriptScroll = 0
		m.transcriptLive = true
		return m.setFlash("Transcript cleared")

	case KeySkipAudio:
		m.session.SkipAudio()
		return m.setFlash("Audio skipped")

	case KeyTheme:
		m.session.ToggleTheme()
		return m.setFlash("Theme: " + m.session.Theme())

	case KeyOriginal:
		m.showOriginal = !m.showOriginal
		return m, nil

	case KeyWorkerState:
		return m, m.session.Worker(session.WorkerState)

	case KeyWorkerStart:
		return m, m.session.Worker(session.WorkerStart)

	case KeyWorkerStop:
		return m, m.session.Worker(session.WorkerStop)
	}

	return m, nil
}

func (m Model) setFlash(text string) (Model, tea.Cmd) {
	m.flashSeq++
	m.flash = text
	return m, clearFlashCmd(m.flashSeq)
}

func (m *Model) scrollToBottom() {
	m.transcriptScroll = m.maxTranscriptScroll()
}

func (m Model) maxTranscriptScroll() int {
	total := len(m.transcriptLines(m.transcriptPanelWidth(), ui.ThemeFor(m.session.Theme())))
	visible := m.transcriptVisibleLines() - 1 // panel header
	if total <= visible {
		return 0
	}
	return total - visible
}

func (m Model) transcriptVisibleLines() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + divider(1) + divider(1) + flash(1) + footer(1) + padding
	reserved := 7
	return max(5, m.height-reserved)
}

func (m Model) languagePanelWidth() int {
	if m.width == 0 {
		return 24
	}
	return max(16, m.width*20/100)
}

func (m Model) transcriptPanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.languagePanelWidth()-3)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	th := ui.ThemeFor(m.session.Theme())

	var sections []string
	sections = append(sections, m.renderHeader(th))
	sections = append(sections, m.renderStatusBar(th))
	sections = append(sections, th.Divider.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderMainContent(th))
	sections = append(sections, th.Divider.Render(strings.Repeat("─", m.width)))
	if m.flash != "" {
		sections = append(sections, th.Dim.Render(m.flash))
	}
	sections = append(sections, m.renderFooter(th))

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader(th ui.Theme) string {
	title := th.Title.Render("CAPTIONS")
	var server string
	if m.server != "" {
		server = th.Dim.Render(" — " + m.server)
	}
	var lang string
	if sel := m.session.Selected(); sel != "" {
		lang = th.Dim.Render(" [" + sel + "]")
	}
	return title + server + lang
}

func (m Model) renderStatusBar(th ui.Theme) string {
	var dot string
	switch m.session.ConnState() {
	case stream.Connected:
		dot = th.ConnectedDot.Render("● LIVE " + m.session.Streaming())
	case stream.Connecting:
		dot = th.ConnectingDot.Render("◌ CONNECTING")
	case stream.Closing:
		dot = th.ConnectingDot.Render("◌ SWITCHING")
	default:
		if m.session.Reconnecting() {
			dot = th.DisconnectedDot.Render("○ OFFLINE (retrying)")
		} else {
			dot = th.DisconnectedDot.Render("○ OFFLINE")
		}
	}

	var paused string
	if m.session.Paused() {
		paused = "  " + th.PausedBadge.Render(" PAUSED ")
	}

	var audio string
	q := m.session.Queue()
	if seg := m.activity.nowPlaying; seg != nil {
		audio = "  " + th.Playing.Render(fmt.Sprintf("▶ #%d", seg.Seq+1))
	}
	if n := q.Len(); n > 0 {
		audio += "  " + th.Queued.Render(fmt.Sprintf("♪ %d queued", n))
	}
	if q.Waiting() {
		audio += "  " + th.Dim.Render("waiting…")
	}

	status := m.session.Status()
	if status != "" {
		status = "  " + th.Status.Render(status)
	}
	return dot + paused + audio + status
}

func (m Model) renderMainContent(th ui.Theme) string {
	langW := m.languagePanelWidth()
	transcriptW := m.transcriptPanelWidth()
	contentH := m.transcriptVisibleLines()

	langLines := strings.Split(m.renderLanguagePanel(th, langW, contentH), "\n")
	transcriptLines := strings.Split(m.renderTranscriptPanel(th, transcriptW, contentH), "\n")

	divider := th.Divider.Render("│")
	rows := make([]string, 0, contentH)
	for i := 0; i < contentH; i++ {
		ll := strings.Repeat(" ", langW)
		if i < len(langLines) {
			ll = langLines[i]
		}
		tr := ""
		if i < len(transcriptLines) {
			tr = transcriptLines[i]
		}
		rows = append(rows, ll+divider+tr)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderLanguagePanel(th ui.Theme, width, height int) string {
	langs := m.session.Languages()
	title := fmt.Sprintf("LANGUAGES (%d)", len(langs))
	var header string
	if m.focusedPanel == FocusLanguages {
		header = th.PanelTitleFocus.Render(title)
	} else {
		header = th.PanelTitle.Render(title)
	}

	lines := []string{padRight(header, width)}
	if m.session.CatalogFallback() {
		lines = append(lines, th.Dim.Render("  built-in list"))
	}

	selected := m.session.Selected()
	for i, l := range langs {
		marker := " "
		if l.Code == selected {
			marker = "●"
		}
		label := l.Code
		if l.Name != "" && l.Name != l.Code {
			label += " " + l.Name
		}

		var line string
		if i == m.langCursor && m.focusedPanel == FocusLanguages {
			line = th.Selected.Render("> " + marker + " " + label)
		} else {
			line = "  " + marker + " " + label
		}
		lines = append(lines, truncateToWidth(line, width))
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}
	return strings.Join(lines, "\n")
}

// transcriptLines renders the segments as wrapped display lines.
func (m Model) transcriptLines(width int, th ui.Theme) []string {
	// Prefix: "[HH:MM:SS] ♪ " = 13 chars visible
	prefixWidth := 13
	textWidth := max(10, width-prefixWidth-2) // -2 for leading indent
	indent := strings.Repeat(" ", prefixWidth)

	var out []string
	for _, seg := range m.session.Segments() {
		ts := th.Timestamp.Render(seg.ReceivedAt.Format("[15:04:05]"))
		wrapped := wrapText(seg.TranslatedText, textWidth)
		out = append(out, ts+" "+stateIcon(th, seg)+" "+th.Caption.Render(wrapped[0]))
		for _, wl := range wrapped[1:] {
			out = append(out, indent+th.Caption.Render(wl))
		}
		if m.showOriginal && seg.OriginalText != "" {
			for _, wl := range wrapText(seg.OriginalText, textWidth) {
				out = append(out, indent+th.Original.Render(wl))
			}
		}
	}
	return out
}

func stateIcon(th ui.Theme, seg *segment.Segment) string {
	switch seg.State {
	case segment.Queued:
		return th.Queued.Render("♪")
	case segment.Playing:
		return th.Playing.Render("▶")
	case segment.Played:
		if seg.HasAudio() {
			return th.Played.Render("✔")
		}
	}
	return " "
}

func (m Model) renderTranscriptPanel(th ui.Theme, width, height int) string {
	var badge string
	if m.transcriptLive {
		badge = th.LiveBadge.Render(" FOLLOW")
	} else if unseen := m.activity.added - m.seen; unseen > 0 {
		badge = th.ScrollBadge.Render(fmt.Sprintf(" SCROLL (%d new)", unseen))
	} else {
		badge = th.ScrollBadge.Render(" SCROLL")
	}

	var header string
	if m.focusedPanel == FocusTranscript {
		header = th.PanelTitleFocus.Render("TRANSCRIPT") + badge
	} else {
		header = th.PanelTitle.Render("TRANSCRIPT") + badge
	}

	lines := []string{header}
	contentHeight := height - 1 // subtract header line

	display := m.transcriptLines(width, th)
	if len(display) == 0 {
		lines = append(lines, "")
		lines = append(lines, m.emptyTranscriptHint(th))
	} else {
		start := 0
		if m.transcriptLive {
			if len(display) > contentHeight {
				start = len(display) - contentHeight
			}
		} else {
			start = m.transcriptScroll
		}
		if start < 0 {
			start = 0
		}
		end := min(start+contentHeight, len(display))
		for i := start; i < end; i++ {
			lines = append(lines, "  "+display[i])
		}
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) emptyTranscriptHint(th ui.Theme) string {
	switch m.session.ConnState() {
	case stream.Connected:
		if m.session.Paused() {
			return th.Dim.Render("  Paused. Press Space to resume")
		}
		return th.Dim.Render("  Waiting for captions...")
	case stream.Connecting, stream.Closing:
		return th.Dim.Render("  Connecting...")
	}
	if m.session.Reconnecting() {
		return th.ErrorText.Render("  Disconnected. Reconnecting...")
	}
	return th.Dim.Render("  Not connected. Tab to languages, Enter to select")
}

func (m Model) renderFooter(th ui.Theme) string {
	key := func(k, desc string) string {
		return th.FooterKey.Render(k) + th.FooterDesc.Render(" "+desc)
	}

	var parts []string
	if m.session.Paused() {
		parts = append(parts, key("Space", "Resume"))
	} else {
		parts = append(parts, key("Space", "Pause"))
	}
	parts = append(parts,
		key("Tab", "Focus"),
		key("j/k", "Nav"),
		key("Enter", "Select"),
		key("↑↓", "Scroll"),
		key("c", "Clear"),
		key("s", "Skip audio"),
		key("o", "Original"),
		key("t", "Theme"),
		key("w", "Worker"),
		key("q", "Quit"),
	)
	return strings.Join(parts, "  ")
}

// Helpers

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible <= width {
		return s
	}
	// Simple truncation for non-styled strings
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if lipgloss.Width(current)+1+lipgloss.Width(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
