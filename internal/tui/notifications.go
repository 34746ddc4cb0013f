package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"petchat/internal/app/dto"
	"petchat/internal/client/session"
)

type notificationsFetchedMsg struct {
	items []dto.Notification
	err   error
}

// NotificationsModel is the inbox behind the unread badge.
type NotificationsModel struct {
	ctx     context.Context
	view    *session.View
	items   []dto.Notification
	cursor  int
	loading bool
	err     error
	width   int
	height  int
}

func NewNotificationsModel(ctx context.Context, view *session.View) NotificationsModel {
	return NotificationsModel{ctx: ctx, view: view, loading: true, width: 80, height: 30}
}

func (m NotificationsModel) Init() tea.Cmd {
	return m.fetch()
}

func (m NotificationsModel) fetch() tea.Cmd {
	return func() tea.Msg {
		items, err := m.view.Unread.Notifications(m.ctx, false)
		return notificationsFetchedMsg{items: items, err: err}
	}
}

// act runs fn then reloads the inbox.
func (m NotificationsModel) act(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return notificationsFetchedMsg{items: m.items, err: err}
		}
		return m.fetch()()
	}
}

func (m NotificationsModel) resize(width, height int) NotificationsModel {
	m.width, m.height = width, height
	return m
}

func (m NotificationsModel) Update(msg tea.Msg) (NotificationsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case notificationsFetchedMsg:
		m.loading = false
		m.items, m.err = msg.items, msg.err
		m.cursor = min(m.cursor, max(len(m.items)-1, 0))
		return m, nil

	case tea.KeyMsg:
		if m.loading {
			return m, nil
		}
		switch msg.String() {
		case "esc":
			return m, func() tea.Msg { return backMsg{} }
		case "q":
			return m, tea.Quit
		case "up", "k":
			m.cursor = max(m.cursor-1, 0)
		case "down", "j":
			m.cursor = min(m.cursor+1, max(len(m.items)-1, 0))
		case "enter":
			if n, ok := m.selected(); ok && !n.IsRead {
				m.loading = true
				return m, m.act(func() error { return m.view.Unread.MarkRead(m.ctx, n.ID) })
			}
		case "a":
			m.loading = true
			return m, m.act(func() error { return m.view.Unread.MarkAllRead(m.ctx) })
		case "d":
			if n, ok := m.selected(); ok {
				m.loading = true
				return m, m.act(func() error { return m.view.Unread.Delete(m.ctx, n.ID, !n.IsRead) })
			}
		case "r":
			m.loading = true
			return m, m.fetch()
		}
	}
	return m, nil
}

func (m NotificationsModel) selected() (dto.Notification, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return dto.Notification{}, false
	}
	return m.items[m.cursor], true
}

func (m NotificationsModel) View() string {
	title := "Notifications"
	if n, ok := m.view.Unread.Count(); ok {
		title += " " + badgeStyle.Render(fmt.Sprintf("%d unread", n))
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	}
	if m.loading && len(m.items) == 0 {
		b.WriteString(statusStyle.Render("  Loading...") + "\n")
	} else if len(m.items) == 0 {
		b.WriteString(normalStyle.Render("  Nothing here.") + "\n")
	}
	for i, n := range m.items {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		style := normalStyle
		if n.IsRead {
			style = pendingStyle
		}
		line := fmt.Sprintf("%s%s • %s", marker, n.Title, n.Message)
		if !n.IsRead {
			line = "● " + line
		} else {
			line = "  " + line
		}
		b.WriteString(style.Render(line) + " " + messageHeaderStyle.Render(formatTimeAgo(n.CreatedAt)) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("↑↓/jk: move • enter: mark read • a: mark all read • d: delete • r: refresh • esc: back"))
	return b.String()
}
