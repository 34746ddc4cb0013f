// Package tui is the terminal front end for a signed-in petchat user.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"petchat/internal/client/session"
)

type screen int

const (
	screenRooms screen = iota
	screenMessages
	screenNotifications
)

// Contact opens the conversation about a listing on start.
type Contact struct {
	ListingID      string
	CounterpartyID string
}

type liveChangedMsg struct{}

type openRoomMsg struct {
	roomID  string
	contact *Contact
}

type backMsg struct{}

type showNotificationsMsg struct{}

// App routes input between the rooms list, the open conversation and the
// notification inbox, and repaints when live traffic changes the view.
type App struct {
	ctx     context.Context
	view    *session.View
	userID  string
	contact *Contact
	changes chan struct{}

	screen        screen
	rooms         RoomsModel
	messages      MessagesModel
	notifications NotificationsModel
	width         int
	height        int
}

func New(ctx context.Context, view *session.View, userID string, contact *Contact) App {
	changes := make(chan struct{}, 1)
	view.OnChange(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	return App{
		ctx:     ctx,
		view:    view,
		userID:  userID,
		contact: contact,
		changes: changes,
		rooms:   NewRoomsModel(ctx, view, userID),
		width:   80,
		height:  30,
	}
}

func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.rooms.Init(), waitForChange(a.changes)}
	if a.contact != nil {
		contact := a.contact
		cmds = append(cmds, func() tea.Msg { return openRoomMsg{contact: contact} })
	}
	return tea.Batch(cmds...)
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return liveChangedMsg{}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.rooms = a.rooms.resize(msg.Width, msg.Height)
		switch a.screen {
		case screenMessages:
			a.messages = a.messages.resize(msg.Width, msg.Height)
		case screenNotifications:
			a.notifications = a.notifications.resize(msg.Width, msg.Height)
		}
		return a, nil
	case liveChangedMsg:
		a.rooms = a.rooms.sync()
		if a.screen == screenMessages {
			a.messages = a.messages.sync()
		}
		return a, waitForChange(a.changes)
	case openRoomMsg:
		a.screen = screenMessages
		a.messages = NewMessagesModel(a.ctx, a.view, a.userID).resize(a.width, a.height)
		return a, tea.Batch(a.messages.spinner.Tick, a.messages.open(msg.roomID, msg.contact))
	case showNotificationsMsg:
		a.screen = screenNotifications
		a.notifications = NewNotificationsModel(a.ctx, a.view).resize(a.width, a.height)
		return a, a.notifications.Init()
	case backMsg:
		a.screen = screenRooms
		a.rooms = a.rooms.sync()
		return a, a.rooms.fetch()
	}

	var cmd tea.Cmd
	switch a.screen {
	case screenMessages:
		a.messages, cmd = a.messages.Update(msg)
	case screenNotifications:
		a.notifications, cmd = a.notifications.Update(msg)
	default:
		a.rooms, cmd = a.rooms.Update(msg)
	}
	return a, cmd
}

func (a App) View() string {
	switch a.screen {
	case screenMessages:
		return a.messages.View()
	case screenNotifications:
		return a.notifications.View()
	default:
		return a.rooms.View()
	}
}

func statusLine(view *session.View) string {
	st := view.State()
	if st.Connected {
		return statusStyle.Render("● live")
	}
	if st.LastError != "" {
		return offlineStyle.Render("○ offline: " + st.LastError)
	}
	return offlineStyle.Render("○ offline")
}
