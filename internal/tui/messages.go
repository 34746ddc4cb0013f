package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"petchat/internal/client/session"
	"petchat/internal/client/stream"
)

type roomOpenedMsg struct {
	stream *stream.Stream
	err    error
}

type historyLoadedMsg struct {
	err error
}

type messageSentMsg struct {
	err error
}

// MessagesModel shows one conversation and composes messages into it.
type MessagesModel struct {
	ctx       context.Context
	view      *session.View
	userID    string
	stream    *stream.Stream
	viewport  viewport.Model
	textarea  textarea.Model
	spinner   spinner.Model
	loading   bool
	sending   bool
	composing bool
	err       error
	width     int
	height    int
}

func NewMessagesModel(ctx context.Context, view *session.View, userID string) MessagesModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	ta := textarea.New()
	ta.Placeholder = "Type your message..."
	ta.CharLimit = 2000
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	return MessagesModel{
		ctx:      ctx,
		view:     view,
		userID:   userID,
		viewport: viewport.New(80, 20),
		textarea: ta,
		spinner:  s,
		loading:  true,
		width:    80,
		height:   30,
	}
}

func (m MessagesModel) open(roomID string, contact *Contact) tea.Cmd {
	return func() tea.Msg {
		var (
			s   *stream.Stream
			err error
		)
		if contact != nil {
			s, err = m.view.Contact(m.ctx, contact.ListingID, contact.CounterpartyID)
		} else {
			s, err = m.view.OpenRoom(m.ctx, roomID)
		}
		return roomOpenedMsg{stream: s, err: err}
	}
}

func (m MessagesModel) reload() tea.Cmd {
	s := m.stream
	return func() tea.Msg {
		_, err := s.LoadHistory(m.ctx)
		return historyLoadedMsg{err: err}
	}
}

func (m MessagesModel) send(text string) tea.Cmd {
	s := m.stream
	return func() tea.Msg {
		_, err := s.Send(m.ctx, text)
		return messageSentMsg{err: err}
	}
}

// resend retries every failed pending message.
func (m MessagesModel) resend() tea.Cmd {
	s := m.stream
	return func() tea.Msg {
		var errs []error
		for _, p := range s.Pending() {
			if p.Err == nil {
				continue
			}
			if _, err := s.Resend(m.ctx, p.Message.CorrelationID); err != nil {
				errs = append(errs, err)
			}
		}
		return messageSentMsg{err: errors.Join(errs...)}
	}
}

func (m MessagesModel) resize(width, height int) MessagesModel {
	m.width, m.height = width, height
	available := height - 8
	if m.composing {
		available -= 5
	}
	m.viewport.Width = width - 4
	m.viewport.Height = max(available, 3)
	m.textarea.SetWidth(width - 4)
	return m.sync()
}

// sync re-renders the conversation from the stream's state.
func (m MessagesModel) sync() MessagesModel {
	if m.stream == nil {
		return m
	}
	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
	return m
}

func (m MessagesModel) render() string {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	right := lipgloss.NewStyle().Align(lipgloss.Right).Width(width)
	var b strings.Builder
	line := func(mine bool, header, body string, style lipgloss.Style) {
		text := style.Render(wordwrap.String(body, width-10))
		if mine {
			b.WriteString(right.Render(messageHeaderStyle.Render(header)) + "\n")
			b.WriteString(right.Render(text) + "\n")
			return
		}
		b.WriteString(messageHeaderStyle.Render(header) + "\n")
		b.WriteString(text + "\n")
	}

	for _, msg := range m.stream.Messages() {
		mine := msg.SenderID == m.userID
		sender := msg.SenderName
		if mine {
			sender = "You"
		} else if sender == "" {
			sender = msg.SenderID
		}
		body := msg.Content
		if msg.Type == "IMAGE" || msg.Type == "FILE" {
			body = "📎 " + body
		}
		style := messageFromOtherStyle
		if mine {
			style = messageFromMeStyle
		}
		line(mine, fmt.Sprintf("%s • %s", sender, msg.Timestamp.Local().Format("3:04 PM")), body, style)
	}
	for _, p := range m.stream.Previews() {
		line(false, "typing…", p.Content, pendingStyle)
	}
	for _, p := range m.stream.Pending() {
		header := "You • sending"
		if p.Err != nil {
			header = "You • failed, R to retry"
		}
		line(true, header, p.Message.Content, pendingStyle)
	}
	return b.String()
}

func (m MessagesModel) Update(msg tea.Msg) (MessagesModel, tea.Cmd) {
	switch msg := msg.(type) {
	case roomOpenedMsg:
		m.loading = false
		m.err = msg.err
		if msg.stream == nil {
			return m, nil
		}
		m.stream = msg.stream
		return m.sync(), nil

	case historyLoadedMsg:
		m.loading = false
		m.err = msg.err
		return m.sync(), nil

	case messageSentMsg:
		m.sending = false
		m.err = msg.err
		return m.sync(), nil

	case spinner.TickMsg:
		if m.loading || m.sending {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "esc" {
			if m.composing {
				m.composing = false
				m.textarea.Reset()
				m.textarea.Blur()
				return m.resize(m.width, m.height), nil
			}
			return m, func() tea.Msg { return backMsg{} }
		}

		if m.composing {
			if msg.String() == "ctrl+s" {
				text := strings.TrimSpace(m.textarea.Value())
				if text == "" {
					return m, nil
				}
				m.sending = true
				m.composing = false
				m.textarea.Reset()
				m.textarea.Blur()
				m = m.resize(m.width, m.height)
				return m, tea.Batch(m.spinner.Tick, m.send(text))
			}
			var cmd tea.Cmd
			m.textarea, cmd = m.textarea.Update(msg)
			return m, cmd
		}

		if m.stream == nil || m.loading || m.sending {
			return m, nil
		}

		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "n", "c":
			m.composing = true
			m.textarea.Focus()
			return m.resize(m.width, m.height), textarea.Blink
		case "r":
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, m.reload())
		case "R":
			m.sending = true
			return m, tea.Batch(m.spinner.Tick, m.resend())
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m MessagesModel) View() string {
	if m.stream == nil {
		if m.loading {
			return fmt.Sprintf("\n  %s Opening conversation...\n", m.spinner.View())
		}
		s := titleStyle.Render("Conversation") + "\n"
		if m.err != nil {
			s += errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\n"
		}
		return s + helpStyle.Render("esc: back")
	}

	room := m.stream.Room()
	s := titleStyle.Render("💬 "+room.Name) + "\n"
	s += statusLine(m.view) + "\n"
	if !room.IsActive {
		s += offlineStyle.Render("This conversation is closed.") + "\n"
	}
	if m.err != nil {
		s += errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n"
	}

	switch {
	case m.sending:
		s += fmt.Sprintf("  %s Sending...\n", m.spinner.View())
	case len(m.stream.Messages()) == 0 && len(m.stream.Pending()) == 0 && !m.loading:
		s += normalStyle.Render("  No messages yet. Say hello!") + "\n"
	default:
		s += m.viewport.View() + "\n"
	}

	if m.composing {
		s += "\n" + inputStyle.Render("New Message:") + "\n"
		s += m.textarea.View() + "\n"
		s += helpStyle.Render("ctrl+s: send • esc: cancel")
		return s
	}
	pct := int(m.viewport.ScrollPercent() * 100)
	s += "\n" + helpStyle.Render(fmt.Sprintf("↑↓/jk: scroll • n: new message • r: reload • R: retry failed • esc: back • q: quit • %d%%", pct))
	return s
}
