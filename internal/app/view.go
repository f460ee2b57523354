package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jwulff/panelscribe/internal/interview"
	"github.com/jwulff/panelscribe/internal/ui"
)

const maxSpeakerKeys = 9

func (m Model) maxTranscriptScroll() int {
	total := len(m.bodyLines(m.transcriptPanelWidth()))
	visible := m.transcriptVisibleLines() - 1
	if total <= visible {
		return 0
	}
	return total - visible
}

func (m Model) transcriptVisibleLines() int {
	if m.height == 0 {
		return 20
	}
	// header, status, students, two dividers, error, footer
	reserved := 8
	return max(5, m.height-reserved)
}

func (m Model) questionPanelWidth() int {
	if m.width == 0 {
		return 30
	}
	return max(24, m.width*30/100)
}

func (m Model) transcriptPanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.questionPanelWidth()-3)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, m.renderStudents())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	switch m.mode {
	case modeStudents, modeQuestions:
		sections = append(sections, m.renderSetup())
	case modeRecover:
		sections = append(sections, m.renderRecover())
	default:
		sections = append(sections, m.renderMainContent())
	}

	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("PANELSCRIBE")
	badge := " " + ui.StateStyle(string(m.state)).Render(strings.ToUpper(string(m.state)))

	var banner string
	if m.demoMode() {
		banner = " " + ui.DemoBannerStyle.Render(" DEMO MODE ")
	}

	var backend string
	if m.backendErr != "" {
		backend = " " + ui.ErrorStyle.Render(m.backendErr)
	} else if m.opts.ServerURL != "" {
		backend = ui.DimStyle.Render(" " + m.opts.ServerURL)
	}
	return title + badge + banner + backend
}

func (m Model) demoMode() bool {
	return m.demo || (m.health != nil && m.health.DemoMode)
}

func (m Model) renderStatusBar() string {
	var dot string
	if m.recording {
		dot = ui.RecordingDotStyle.Render("● REC")
	} else {
		dot = ui.IdleDotStyle.Render("○ IDLE")
	}
	parts := []string{dot}

	if m.sess != nil && m.state != interview.StateSetup {
		parts = append(parts, ui.StatusStyle.Render(interview.FormatDuration(m.sess.Duration(m.opts.Now()))))
	}
	if m.inFlight > 0 {
		parts = append(parts, ui.SpinnerStyle.Render(fmt.Sprintf("⟳ %d transcribing", m.inFlight)))
	}
	if m.sess != nil && m.sess.LastSaved != nil {
		saved := "saved " + humanize.Time(*m.sess.LastSaved)
		if m.savedTrigger != "" {
			saved += " (" + m.savedTrigger + ")"
		}
		parts = append(parts, ui.DimStyle.Render(saved))
	}
	if m.busy != "" {
		parts = append(parts, ui.SpinnerStyle.Render(m.busy))
	} else if m.statusText != "" {
		parts = append(parts, ui.StatusStyle.Render(m.statusText))
	}
	return strings.Join(parts, "  ")
}

// renderStudents shows the speaker keys with the recording speaker highlighted.
func (m Model) renderStudents() string {
	if m.sess == nil || m.state == interview.StateSetup {
		return ui.DimStyle.Render("No session")
	}

	var parts []string
	for i, name := range m.sess.Students {
		label := name
		if i < maxSpeakerKeys {
			label = fmt.Sprintf("%d %s", i+1, name)
		}
		if m.selected && m.speaker == name {
			parts = append(parts, ui.ActiveSpeakerStyle.Render(" "+label+" "))
		} else {
			parts = append(parts, ui.SpeakerStyle.Render(label))
		}
	}
	none := "0 " + interview.NoSpeaker
	if m.selected && m.speaker == "" {
		parts = append(parts, ui.ActiveSpeakerStyle.Render(" "+none+" "))
	} else {
		parts = append(parts, ui.NoSpeakerStyle.Render(none))
	}
	if !m.selected && m.state == interview.StateActive {
		parts = append(parts, ui.DimStyle.Render("select a speaker to record"))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderSetup() string {
	height := m.transcriptVisibleLines()
	var lines []string

	if m.mode == modeStudents {
		lines = append(lines, ui.PanelTitleActiveStyle.Render("STUDENTS"))
		lines = append(lines, ui.DimStyle.Render("  Names separated by commas"))
	} else {
		lines = append(lines, ui.PanelTitleStyle.Render("STUDENTS ")+strings.Join(m.setupStudents, ", "))
		lines = append(lines, "")
		lines = append(lines, ui.PanelTitleActiveStyle.Render("QUESTIONS"))
		lines = append(lines, ui.DimStyle.Render(fmt.Sprintf("  Up to %d, separated by semicolons. Blank ones get placeholders.", interview.MaxQuestions)))
	}
	lines = append(lines, "")
	for _, wl := range wrapText(m.input+"▌", max(10, m.width-4)) {
		lines = append(lines, "  "+ui.InputStyle.Render(wl))
	}

	return padLines(lines, height)
}

func (m Model) renderRecover() string {
	height := m.transcriptVisibleLines()
	rec := m.recoverable
	lines := []string{ui.PanelTitleActiveStyle.Render("UNFINISHED SESSION")}
	if rec != nil {
		lines = append(lines,
			"",
			fmt.Sprintf("  Students:  %s", strings.Join(rec.Students, ", ")),
			fmt.Sprintf("  Questions: %d", rec.TotalQuestions),
			fmt.Sprintf("  Duration:  %s", rec.Duration),
			fmt.Sprintf("  Saved:     %s", humanize.Time(rec.SavedAt)),
			"",
			"  Recover this session?",
		)
	}
	return padLines(lines, height)
}

func (m Model) renderMainContent() string {
	questionW := m.questionPanelWidth()
	transcriptW := m.transcriptPanelWidth()
	contentH := m.transcriptVisibleLines()

	questionLines := strings.Split(m.renderQuestionPanel(questionW, contentH), "\n")
	transcriptLines := strings.Split(m.renderTranscriptPanel(transcriptW, contentH), "\n")

	divider := ui.DividerStyle.Render("│")
	var rows []string
	for i := 0; i < contentH; i++ {
		ql := strings.Repeat(" ", questionW)
		if i < len(questionLines) {
			ql = questionLines[i]
		}
		tr := ""
		if i < len(transcriptLines) {
			tr = transcriptLines[i]
		}
		rows = append(rows, ql+divider+tr)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderQuestionPanel(width, height int) string {
	var lines []string
	if m.sess == nil {
		lines = append(lines, ui.PanelTitleStyle.Render("QUESTIONS"))
		return padPanel(lines, width, height)
	}

	lines = append(lines, ui.PanelTitleActiveStyle.Render(fmt.Sprintf("QUESTIONS (%d)", len(m.sess.Questions))))
	for i, q := range m.sess.Questions {
		marker := " "
		if i == m.sess.CurrentQuestionIndex && m.state == interview.StateActive {
			marker = ui.RecordingDotStyle.Render("●")
		}
		count := len(interview.Finalized(q.Transcript))
		label := fmt.Sprintf("Q%d %s", i+1, q.Text)
		if q.IsPlaceholder {
			label = fmt.Sprintf("Q%d (flexible)", i+1)
		}
		label = truncateToWidth(label, max(8, width-8))
		var line string
		if i == m.viewIndex {
			line = marker + ui.SelectedStyle.Render("> "+label)
		} else {
			line = marker + "  " + label
		}
		if count > 0 {
			line += ui.DimStyle.Render(fmt.Sprintf(" %d", count))
		}
		lines = append(lines, line)
	}

	if m.state == interview.StateEnded || m.state == interview.StateAnalyzed {
		md := m.sess.Metadata
		lines = append(lines, "",
			ui.PanelTitleStyle.Render("SUMMARY"),
			ui.DimStyle.Render("  Entries:  "+humanize.Comma(int64(md.TotalTranscriptions))),
			ui.DimStyle.Render(fmt.Sprintf("  Answered: %d", md.QuestionsCompleted)),
			ui.DimStyle.Render("  Quality:  "+md.SessionQuality),
		)
		if md.MostActiveStudent != "" {
			lines = append(lines, ui.DimStyle.Render("  Most active: "+md.MostActiveStudent))
		}
	}

	return padPanel(lines, width, height)
}

// bodyLines builds the transcript or report lines for the right panel.
func (m Model) bodyLines(width int) []string {
	textWidth := max(10, width-4)

	if m.showReport && m.report != nil {
		return wrapText(m.report.Text, textWidth)
	}

	q := m.currentQuestion()
	if q == nil {
		return nil
	}

	// Prefix: "[HH:MM:SS] " plus the speaker label
	var lines []string
	for _, e := range q.Transcript {
		ts := ui.TimestampStyle.Render(e.Timestamp.Format("[15:04:05]"))
		label := interview.SpeakerLabel(e.Speaker)
		var spk string
		if label == interview.NoSpeaker {
			spk = ui.NoSpeakerStyle.Render(label + ":")
		} else {
			spk = ui.SpeakerStyle.Render(label + ":")
		}
		indent := strings.Repeat(" ", lipgloss.Width(label)+13)
		wrapped := wrapText(e.Text, max(10, textWidth-len(indent)))
		style := lipgloss.NewStyle()
		if e.IsPending() {
			style = ui.PendingStyle
		}
		lines = append(lines, ts+" "+spk+" "+style.Render(wrapped[0]))
		for _, wl := range wrapped[1:] {
			lines = append(lines, indent+style.Render(wl))
		}
	}
	return lines
}

func (m Model) renderTranscriptPanel(width, height int) string {
	var badge string
	if m.transcriptLive {
		badge = ui.LiveBadgeStyle.Render(" LIVE")
	} else {
		badge = ui.ScrollBadgeStyle.Render(" SCROLL")
	}

	var header string
	q := m.currentQuestion()
	switch {
	case m.showReport && m.report != nil:
		header = ui.PanelTitleActiveStyle.Render("ANALYSIS")
		if m.report.Demo {
			header += " " + ui.DemoBannerStyle.Render(" DEMO ")
		}
	case m.mode == modeEdit:
		header = ui.PanelTitleActiveStyle.Render("EDIT QUESTION")
	case m.mode == modePrompt:
		header = ui.PanelTitleActiveStyle.Render("ANALYSIS PROMPT")
	case q != nil:
		header = ui.PanelTitleActiveStyle.Render(truncateToWidth(fmt.Sprintf("Q%d: %s", m.viewIndex+1, q.Text), max(10, width-10))) + badge
	default:
		header = ui.PanelTitleStyle.Render("TRANSCRIPT")
	}

	lines := []string{header}
	contentHeight := height - 1

	switch {
	case m.mode == modeEdit || m.mode == modePrompt:
		lines = append(lines, "")
		for _, wl := range wrapText(m.input+"▌", max(10, width-4)) {
			lines = append(lines, "  "+ui.InputStyle.Render(wl))
		}
		lines = append(lines, "", ui.DimStyle.Render("  Enter to submit, Esc to cancel"))

	case m.mode == modeConfirmReset:
		lines = append(lines, "", ui.ErrorStyle.Render("  Reset all data including students? (y/n)"))

	default:
		display := m.bodyLines(width)
		if len(display) == 0 {
			lines = append(lines, "")
			if m.state == interview.StateActive && !m.selected {
				lines = append(lines, ui.DimStyle.Render("  Press a number to start recording a student"))
			} else {
				lines = append(lines, ui.DimStyle.Render("  No transcription yet"))
			}
			break
		}

		start := 0
		if m.transcriptLive && !m.showReport {
			if len(display) > contentHeight {
				start = len(display) - contentHeight
			}
		} else {
			start = m.transcriptScroll
		}
		start = max(0, min(start, len(display)))
		end := min(start+contentHeight, len(display))
		for i := start; i < end; i++ {
			lines = append(lines, "  "+display[i])
		}
	}

	return padLines(lines, height)
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: " + m.errorMessage)
}

func (m Model) renderFooter() string {
	var parts []string
	hint := func(key, desc string) {
		parts = append(parts, ui.FooterKeyStyle.Render(key)+ui.FooterDescStyle.Render(" "+desc))
	}

	switch {
	case m.mode == modeStudents || m.mode == modeQuestions:
		hint("Enter", "Continue")
		if m.mode == modeQuestions {
			hint("Esc", "Back")
		}
		hint("Ctrl+C", "Quit")
		return strings.Join(parts, "  ")
	case m.mode == modeRecover:
		hint("y", "Recover")
		hint("n", "Discard")
	case m.mode == modeEdit || m.mode == modePrompt:
		hint("Enter", "Submit")
		hint("Esc", "Cancel")
		return strings.Join(parts, "  ")
	case m.mode == modeConfirmReset:
		hint("y", "Reset")
		hint("n", "Cancel")
		return strings.Join(parts, "  ")
	case m.state == interview.StateActive:
		hint("1-9", "Speaker")
		hint("0", "No speaker")
		hint("n", "Next")
		hint("e", "Edit")
		hint("x", "End")
		hint("r", "Reset")
	case m.state == interview.StateEnded || m.state == interview.StateAnalyzed:
		hint("j/k", "Question")
		hint("a", "Analyze")
		if m.report != nil {
			hint("Tab", "Report")
		}
		hint("w", "Export")
		hint("r", "Reset")
	}
	hint("↑↓", "Scroll")
	hint("q", "Quit")

	return strings.Join(parts, "  ")
}

// Helpers

func padLines(lines []string, height int) string {
	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func padPanel(lines []string, width, height int) string {
	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = padRight(truncateToWidth(l, width), width)
	}
	return strings.Join(lines, "\n")
}

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

// truncateToWidth shortens unstyled strings; styled ones pass through.
func truncateToWidth(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 && len(runes) == lipgloss.Width(s) {
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
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
