package chat

import (
	"strings"
	"sync"
)

const (
	seqSaveCursor    = "\0337\033[s"
	seqRestoreCursor = "\033[u\0338"
	seqCursorHome    = "\033[H"
	seqClearLine     = "\033[2K"
	seqClearToEOL    = "\033[K"
	seqInsertLine    = "\033[1L"
	seqClearScreen   = "\033[2J"

	promptMarker = "> "
)

// terminalUI renders scroll-back lines above a prompt, with a status line pinned to the top row.
type terminalUI struct {
	writer *sessionWriter

	statusOnce sync.Once
	statusErr  error
}

func newTerminalUI(writer *sessionWriter) *terminalUI {
	return &terminalUI{writer: writer}
}

func (ui *terminalUI) ClearScreen() error {
	return ui.writer.writeString(seqClearScreen + seqCursorHome)
}

func (ui *terminalUI) DisplayControlAck(label string) error {
	return ui.DisplayMessage(label)
}

// DisplayMessage replaces the prompt row with msg; the caller re-renders the prompt afterwards.
func (ui *terminalUI) DisplayMessage(msg string) error {
	lines := strings.Split(strings.TrimRight(msg, "\r\n"), "\n")

	var b strings.Builder
	for _, line := range lines {
		b.WriteString("\r" + seqClearToEOL)
		b.WriteString(strings.TrimRight(line, "\r"))
		b.WriteString("\r\n")
	}
	return ui.writer.writeString(b.String())
}

func (ui *terminalUI) UpdatePrompt(header, line string) error {
	if err := ui.ensureStatusLine(); err != nil {
		return err
	}
	if err := ui.renderStatus(header); err != nil {
		return err
	}
	return ui.writer.writeString("\r" + promptMarker + line + seqClearToEOL)
}

func (ui *terminalUI) ensureStatusLine() error {
	ui.statusOnce.Do(func() {
		ui.statusErr = ui.writer.writeString(seqSaveCursor + seqCursorHome + seqInsertLine + seqRestoreCursor)
	})
	return ui.statusErr
}

func (ui *terminalUI) renderStatus(text string) error {
	return ui.writer.writeString(seqSaveCursor + seqCursorHome + seqClearLine + text + seqRestoreCursor)
}
