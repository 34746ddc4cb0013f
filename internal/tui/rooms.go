package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"petchat/internal/client/rooms"
	"petchat/internal/client/session"
)

type roomItem struct {
	room   rooms.Room
	userID string
}

type roomsFetchedMsg struct {
	err error
}

func (i roomItem) Title() string {
	title := i.room.Name
	if title == "" {
		title = i.room.AdoptionListingTitle
	}
	if i.room.UnreadCount > 0 {
		title += " " + badgeStyle.Render(fmt.Sprint(i.room.UnreadCount))
	}
	if !i.room.IsActive {
		title += " (closed)"
	}
	return title
}

func (i roomItem) Description() string {
	who := i.room.InterestedUserName
	if i.room.InterestedUserID == i.userID {
		who = i.room.OwnerName
	}
	preview := i.room.LastMessage
	if len(preview) > 50 {
		preview = preview[:47] + "..."
	}
	if preview == "" {
		preview = "no messages yet"
	}
	var at time.Time
	if i.room.LastMessageTime != nil {
		at = *i.room.LastMessageTime
	}
	return fmt.Sprintf("%s • %s • %s", who, formatTimeAgo(at), preview)
}

func (i roomItem) FilterValue() string {
	return i.room.Name
}

func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 48*time.Hour:
		return "yesterday"
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
	return t.Format("Jan 2")
}

// RoomsModel lists the user's conversations with their unread counts.
type RoomsModel struct {
	ctx     context.Context
	view    *session.View
	userID  string
	list    list.Model
	spinner spinner.Model
	loading bool
	err     error
}

func NewRoomsModel(ctx context.Context, view *session.View, userID string) RoomsModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("5")).
		Bold(true)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("8"))

	l := list.New([]list.Item{}, delegate, 80, 20)
	l.Title = "Conversations"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	return RoomsModel{ctx: ctx, view: view, userID: userID, list: l, spinner: s, loading: true}
}

func (m RoomsModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m RoomsModel) fetch() tea.Cmd {
	return func() tea.Msg {
		_, err := m.view.Rooms.Refresh(m.ctx, m.userID)
		return roomsFetchedMsg{err: err}
	}
}

func (m RoomsModel) resize(width, height int) RoomsModel {
	m.list.SetWidth(width)
	m.list.SetHeight(height - 4)
	return m
}

// sync rebuilds the items from the directory's local state.
func (m RoomsModel) sync() RoomsModel {
	all := m.view.Rooms.Rooms()
	items := make([]list.Item, len(all))
	for i, r := range all {
		items[i] = roomItem{room: r, userID: m.userID}
	}
	m.list.SetItems(items)
	m.list.Title = fmt.Sprintf("Conversations - %d", len(all))
	if n, ok := m.view.Unread.Count(); ok && n > 0 {
		m.list.Title += " " + badgeStyle.Render(fmt.Sprintf("%d unread", n))
	}
	return m
}

func (m RoomsModel) Update(msg tea.Msg) (RoomsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case roomsFetchedMsg:
		m.loading = false
		m.err = msg.err
		return m.sync(), nil

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.list, cmd = m.list.Update(msg)
			return m, cmd
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "r":
			if !m.loading {
				m.loading = true
				return m, tea.Batch(m.spinner.Tick, m.fetch())
			}
			return m, nil
		case "N":
			return m, func() tea.Msg { return showNotificationsMsg{} }
		case "enter":
			if item, ok := m.list.SelectedItem().(roomItem); ok && !m.loading {
				roomID := item.room.ID
				return m, func() tea.Msg { return openRoomMsg{roomID: roomID} }
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m RoomsModel) View() string {
	if m.loading && len(m.list.Items()) == 0 {
		return fmt.Sprintf("\n  %s Loading conversations...\n", m.spinner.View())
	}
	s := statusLine(m.view) + "\n"
	if m.err != nil {
		s += errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n"
	}
	if len(m.list.Items()) == 0 {
		s += titleStyle.Render("Conversations") + "\n"
		s += normalStyle.Render("  No conversations yet.") + "\n\n"
		s += helpStyle.Render("r: refresh • N: notifications • q: quit")
		return s
	}
	s += m.list.View() + "\n"
	s += helpStyle.Render("↑↓/jk: navigate • enter: open • /: search • r: refresh • N: notifications • q: quit")
	return s
}
