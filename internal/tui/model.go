package tui

import (
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gemini-chat/internal/conversation"
	"gemini-chat/internal/render"
)

// stateChangedMsg is sent by the manager's change listener. The model
// re-reads the snapshot rather than trusting a payload, so a late message
// never paints stale state.
type stateChangedMsg struct{}

type Options struct {
	// Title shown in the header, e.g. the proxy URL
	Title string

	Render render.Options
}

type Model struct {
	mgr   *conversation.Manager
	opts  Options
	state conversation.State

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	// rendered caches assistant Markdown by message ID; reset on resize
	rendered map[uint64]string
	notice   string
	ready    bool
	width    int
	height   int

	copyText func(string) error
}

func NewModel(mgr *conversation.Manager, opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Type your message here..."
	ta.CharLimit = 4000
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.Focus()
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(colorText)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorTextDim)
	ta.BlurredStyle = ta.FocusedStyle

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = loadingStyle

	return Model{
		mgr:      mgr,
		opts:     opts,
		state:    mgr.Snapshot(),
		textarea: ta,
		spinner:  s,
		rendered: make(map[uint64]string),
		copyText: clipboard.WriteAll,
	}
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case stateChangedMsg:
		wasLoading := m.state.Loading
		m.state = m.mgr.Snapshot()
		m.updateViewport()
		m.viewport.GotoBottom()
		if m.state.Loading && !wasLoading {
			cmds = append(cmds, m.spinner.Tick)
		}

	case spinner.TickMsg:
		if m.state.Loading {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.mgr.Cancel()
			return m, tea.Quit

		case "esc":
			if m.state.Loading {
				m.mgr.Cancel()
				m.notice = "Request cancelled"
				return m, nil
			}
			return m, tea.Quit

		case "ctrl+y":
			m.copyLastReply()
			return m, nil

		case "enter":
			return m.submit()
		}

		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
		m.mgr.ChangeInput(m.textarea.Value())
		return m, tea.Batch(cmds...)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textarea.Value())
	m.notice = ""

	switch input {
	case "":
		return m, nil
	case "/quit", "/exit":
		m.mgr.Cancel()
		return m, tea.Quit
	case "/clear":
		m.textarea.Reset()
		m.mgr.ChangeInput("")
		m.mgr.Reset()
		return m, nil
	}

	m.mgr.ChangeInput(m.textarea.Value())
	if _, ok := m.mgr.Submit(); ok {
		m.textarea.Reset()
	}
	return m, nil
}

func (m *Model) copyLastReply() {
	for i := len(m.state.Messages) - 1; i >= 0; i-- {
		msg := m.state.Messages[i]
		if msg.Role != conversation.RoleAssistant {
			continue
		}
		if err := m.copyText(msg.Content); err != nil {
			m.notice = "Copy failed: " + err.Error()
			return
		}
		m.notice = "Copied last reply to clipboard"
		return
	}
	m.notice = "Nothing to copy"
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	headerHeight := 3
	inputHeight := 5
	statusHeight := 2
	vpHeight := height - headerHeight - inputHeight - statusHeight - 2
	if vpHeight < 5 {
		vpHeight = 5
	}
	contentWidth := width - 4

	if !m.ready {
		m.viewport = viewport.New(contentWidth, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = contentWidth
		m.viewport.Height = vpHeight
	}
	m.textarea.SetWidth(contentWidth - 4)

	m.rendered = make(map[uint64]string)
	m.updateViewport()
	m.viewport.GotoBottom()
}

func (m *Model) updateViewport() {
	if !m.ready {
		return
	}

	var content strings.Builder
	bubbleWidth := m.viewport.Width - 6
	if bubbleWidth < 10 {
		bubbleWidth = 10
	}

	for i, msg := range m.state.Messages {
		if i > 0 {
			content.WriteString("\n")
		}
		if msg.Role == conversation.RoleUser {
			content.WriteString(userLabelStyle.Render("You"))
			content.WriteString("\n")
			content.WriteString(userBubbleStyle.Width(bubbleWidth).Render(msg.Content))
		} else {
			content.WriteString(assistantLabelStyle.Render("✦ Gemini"))
			content.WriteString("\n")
			content.WriteString(assistantBubbleStyle.Width(bubbleWidth).Render(m.renderAssistant(msg, bubbleWidth-4)))
		}
		content.WriteString("\n")
	}

	m.viewport.SetContent(content.String())
}

func (m *Model) renderAssistant(msg conversation.Message, width int) string {
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	out := render.MarkdownOrPlain(msg.Content, m.opts.Render.WithWidth(width))
	m.rendered[msg.ID] = out
	return out
}

func (m Model) View() string {
	if !m.ready {
		return loadingStyle.Render("  Initializing...")
	}

	contentWidth := m.width - 4
	var sections []string

	headerParts := []string{titleStyle.Render("✦ Gemini Chat")}
	if m.opts.Title != "" {
		headerParts = append(headerParts, subtitleStyle.Render("  •  "+m.opts.Title))
	}
	sections = append(sections,
		headerStyle.Width(contentWidth).Render(lipgloss.JoinHorizontal(lipgloss.Center, headerParts...)))

	sections = append(sections,
		messagesAreaStyle.Width(contentWidth).Height(m.viewport.Height).Render(m.viewport.View()))

	label := inputLabelStyle.Render("You")
	if m.state.Loading {
		label = lipgloss.JoinHorizontal(lipgloss.Center, label, "  ", m.spinner.View(), loadingStyle.Render(" Gemini is thinking"))
	}
	sections = append(sections,
		inputPanelStyle.Width(contentWidth).Render(lipgloss.JoinVertical(lipgloss.Left, label, m.textarea.View())))

	if m.state.Err != "" {
		sections = append(sections, errorStyle.Render("⚠ Error: "+m.state.Err))
	} else if m.notice != "" {
		sections = append(sections, noticeStyle.Render(m.notice))
	}

	sections = append(sections, m.renderStatusBar(contentWidth))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderStatusBar(width int) string {
	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send"},
		{"Esc", "Cancel/Quit"},
		{"Ctrl+Y", "Copy reply"},
		{"/clear", "Reset"},
	}

	items := make([]string, 0, len(shortcuts))
	for _, s := range shortcuts {
		items = append(items, statusKeyStyle.Render(s.key)+statusDescStyle.Render(" "+s.desc))
	}
	return statusBarStyle.Width(width).Align(lipgloss.Center).Render(strings.Join(items, "  │  "))
}

// Run starts the chat TUI and blocks until the user quits.
func Run(mgr *conversation.Manager, opts Options) error {
	p := tea.NewProgram(NewModel(mgr, opts), tea.WithAltScreen())

	// The listener can fire from inside Update (ChangeInput, Submit), where a
	// blocking Send would deadlock the event loop.
	mgr.OnChange(func() { go p.Send(stateChangedMsg{}) })
	defer mgr.OnChange(nil)

	_, err := p.Run()
	mgr.Cancel()
	return err
}
