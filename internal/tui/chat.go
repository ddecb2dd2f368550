package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"

	"github.com/usememos/saaskit/internal/auth"
	"github.com/usememos/saaskit/internal/chat"
	"github.com/usememos/saaskit/internal/provider"
)

// chatView lines outside the transcript: title, provider bar, input, help and status.
const chatChrome = 10

type chatView struct {
	providers *provider.Registry
	names     []string
	selected  int

	messages []chat.Message
	input    textinput.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer
	width    int

	stream     *chat.Stream
	stopStream context.CancelFunc
	streaming  bool
	partial    string
}

type (
	streamStartedMsg struct {
		stream *chat.Stream
		err    error
	}
	chunkMsg struct {
		stream *chat.Stream
		chunk  string
	}
	streamDoneMsg struct {
		stream *chat.Stream
		err    error
	}
)

func newChatView(providers *provider.Registry) chatView {
	ti := textinput.New()
	ti.Placeholder = "Ask anything..."
	ti.CharLimit = 4000

	v := chatView{
		providers: providers,
		names:     providers.Names(),
		input:     ti,
		viewport:  viewport.New(96, 20),
	}
	for i, name := range v.names {
		if name == providers.Default() {
			v.selected = i
		}
	}
	v.resize(100, 30)
	return v
}

func (v *chatView) resize(width, height int) {
	v.width = width
	v.viewport.Width = max(20, width-4)
	v.viewport.Height = max(3, height-chatChrome)
	v.input.Width = max(10, width-8)
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(20, width-8)),
	)
	if err == nil {
		v.renderer = renderer
	}
	v.refresh()
}

func (v *chatView) provider() string {
	if len(v.names) == 0 {
		return ""
	}
	return v.names[v.selected]
}

func (v *chatView) cancel() {
	if v.stopStream != nil {
		v.stopStream()
	}
}

// reset drops the conversation, stopping any stream in flight.
func (v *chatView) reset() {
	v.cancel()
	v.stream = nil
	v.stopStream = nil
	v.streaming = false
	v.partial = ""
	v.messages = nil
	v.input.Reset()
	v.refresh()
}

func (v *chatView) render(message chat.Message) string {
	if message.Role == chat.RoleUser {
		return userRoleStyle.Render("You") + "\n" + message.Content + "\n"
	}
	body := message.Content
	if v.renderer != nil {
		if out, err := v.renderer.Render(message.Content); err == nil {
			body = strings.TrimRight(out, "\n")
		}
	}
	return assistantRoleStyle.Render("Assistant") + "\n" + body + "\n"
}

func (v *chatView) refresh() {
	var b strings.Builder
	for _, message := range v.messages {
		b.WriteString(v.render(message) + "\n")
	}
	if v.streaming {
		b.WriteString(assistantRoleStyle.Render(v.provider()) + "\n")
		if v.partial == "" {
			b.WriteString(dimStyle.Render("thinking..."))
		} else {
			b.WriteString(v.partial)
		}
		b.WriteString("\n")
	}
	v.viewport.SetContent(b.String())
	v.viewport.GotoBottom()
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	v := &m.chat
	switch msg.String() {
	case "esc":
		if v.streaming {
			v.cancel()
			return m, nil
		}
		return m.navigate(auth.RouteDashboard), nil
	case "tab":
		if !v.streaming && len(v.names) > 0 {
			v.selected = (v.selected + 1) % len(v.names)
		}
		return m, nil
	case "ctrl+l":
		if !v.streaming {
			v.reset()
			m.err = nil
		}
		return m, nil
	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		v.viewport, cmd = v.viewport.Update(msg)
		return m, cmd
	case "enter":
		return m.sendChat()
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return m, cmd
}

func (m Model) sendChat() (tea.Model, tea.Cmd) {
	v := &m.chat
	content := strings.TrimSpace(v.input.Value())
	if content == "" || v.streaming {
		return m, nil
	}
	adapter, err := m.providers.Adapter(v.provider())
	if err != nil {
		m.err = err
		return m, nil
	}

	m.err = nil
	v.messages = append(v.messages, chat.Message{Role: chat.RoleUser, Content: content})
	v.input.Reset()
	v.streaming = true
	v.partial = ""
	v.refresh()

	ctx, cancel := context.WithCancel(m.ctx)
	v.stopStream = cancel
	history := append([]chat.Message(nil), v.messages...)
	return m, func() tea.Msg {
		stream, err := adapter.Stream(ctx, history, "")
		return streamStartedMsg{stream: stream, err: err}
	}
}

func nextChunk(stream *chat.Stream) tea.Cmd {
	return func() tea.Msg {
		if stream.Next() {
			return chunkMsg{stream: stream, chunk: stream.Chunk()}
		}
		return streamDoneMsg{stream: stream, err: stream.Err()}
	}
}

func (m Model) updateChatStream(msg tea.Msg) (tea.Model, tea.Cmd) {
	v := &m.chat
	switch msg := msg.(type) {
	case streamStartedMsg:
		if !v.streaming {
			if msg.stream != nil {
				msg.stream.Close()
			}
			return m, nil
		}
		if msg.err != nil {
			// Give the unanswered message back so it can be resent.
			v.cancel()
			v.streaming = false
			if n := len(v.messages); n > 0 && v.messages[n-1].Role == chat.RoleUser {
				v.input.SetValue(v.messages[n-1].Content)
				v.input.CursorEnd()
				v.messages = v.messages[:n-1]
			}
			v.refresh()
			if !errors.Is(msg.err, context.Canceled) {
				m.err = msg.err
			}
			return m, nil
		}
		v.stream = msg.stream
		return m, nextChunk(msg.stream)

	case chunkMsg:
		if msg.stream != v.stream {
			return m, nil
		}
		v.partial += msg.chunk
		v.refresh()
		return m, nextChunk(msg.stream)

	case streamDoneMsg:
		if msg.stream != v.stream {
			return m, nil
		}
		msg.stream.Close()
		v.cancel()
		if v.partial != "" {
			v.messages = append(v.messages, chat.Message{Role: chat.RoleAssistant, Content: v.partial})
		}
		v.stream = nil
		v.stopStream = nil
		v.streaming = false
		v.partial = ""
		if msg.err != nil {
			m.notice = "Reply stopped."
		}
		v.refresh()
		return m, nil
	}
	return m, nil
}

func (m Model) viewChat() string {
	v := m.chat
	var b strings.Builder

	var tabs []string
	for i, name := range v.names {
		if i == v.selected {
			tabs = append(tabs, selectedStyle.Render(name))
		} else {
			tabs = append(tabs, dimStyle.Render(" "+name+" "))
		}
	}
	if len(tabs) == 0 {
		b.WriteString(errorStyle.Render("No chat provider is configured.") + "\n\n")
	} else {
		b.WriteString(headerStyle.Render("Chat") + " " + strings.Join(tabs, " ") + "\n\n")
	}

	b.WriteString(v.viewport.View() + "\n")
	b.WriteString(statusBarStyle.Render(">") + " " + v.input.View() + "\n")
	if v.streaming {
		b.WriteString(helpStyle.Render("  esc: stop reply"))
	} else {
		b.WriteString(helpStyle.Render("  enter: send  tab: switch provider  ctrl+l: clear  pgup/pgdown: scroll  esc: dashboard"))
	}
	return b.String() + "\n"
}
