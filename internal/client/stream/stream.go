// Package stream holds the message history of one open room and merges
// durable results with live traffic.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"petchat/internal/app/dto"
	"petchat/internal/client/store"
)

type Message = dto.ChatMessage

var (
	ErrEmptyContent   = errors.New("stream: message content is empty")
	ErrNoRoom         = errors.New("stream: no room selected")
	ErrClosed         = errors.New("stream: closed")
	ErrNotConnected   = errors.New("stream: live channel not connected")
	ErrUnknownPending = errors.New("stream: no pending message with that correlation id")
	ErrMarkReadFailed = errors.New("stream: mark read failed")
)

// Live is the part of the connection manager a stream emits on.
type Live interface {
	Send(event string, payload any) bool
	JoinRoom(key string) bool
	LeaveRoom(key string) bool
}

// Pending is a local echo whose durable write has not succeeded yet. Err is
// set once a write attempt failed.
type Pending struct {
	Message Message
	Err     error
}

type Config struct {
	Room   dto.ChatRoom
	UserID string
	// OnRead receives the number of messages a history load marked read.
	OnRead func(n int)
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Stream is bound to one room. It is safe for concurrent use; callbacks run
// outside its lock.
type Stream struct {
	store  store.Adapter
	live   Live
	room   dto.ChatRoom
	userID string
	onRead func(int)
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu         sync.Mutex
	closed     bool
	subscribed bool
	onMessage  func(Message)
	history    []Message
	byID       map[string]struct{}
	canonical  map[string]struct{}
	previews   []Message
	pending    map[string]*Pending
	order      []string
}

func New(adapter store.Adapter, live Live, cfg Config) *Stream {
	s := &Stream{
		store:     adapter,
		live:      live,
		room:      cfg.Room,
		userID:    cfg.UserID,
		onRead:    cfg.OnRead,
		logger:    cfg.Logger,
		now:       cfg.Now,
		newID:     cfg.NewID,
		byID:      make(map[string]struct{}),
		canonical: make(map[string]struct{}),
		pending:   make(map[string]*Pending),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.onRead == nil {
		s.onRead = func(int) {}
	}
	return s
}

func (s *Stream) Room() dto.ChatRoom { return s.room }

// Key is the live subscription key of the room.
func (s *Stream) Key() string { return "chat_" + s.room.ID }

// LoadHistory fetches the durable history, then marks it read. A failed
// mark-read returns the loaded history together with an error wrapping
// ErrMarkReadFailed.
func (s *Stream) LoadHistory(ctx context.Context) ([]Message, error) {
	if s.room.ID == "" {
		return nil, ErrNoRoom
	}
	list, err := s.store.ListMessages(ctx, s.room.ID, s.userID)
	if err != nil {
		return nil, fmt.Errorf("stream: load history: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.replaceHistory(list)
	out := append([]Message(nil), s.history...)
	s.mu.Unlock()

	n, err := s.store.MarkRead(ctx, s.room.ID, s.userID)
	if err != nil {
		s.logger.Warn("mark read failed", "room_id", s.room.ID, "error", err)
		return out, fmt.Errorf("%w: %w", ErrMarkReadFailed, err)
	}
	if n > 0 && !s.isClosed() {
		s.onRead(n)
	}
	return out, nil
}

// replaceHistory installs a fresh load, keeping canonical messages that
// arrived live and are not part of it.
func (s *Stream) replaceHistory(list []Message) {
	loaded := make(map[string]struct{}, len(list))
	for _, m := range list {
		loaded[m.ID] = struct{}{}
	}
	merged := append([]Message(nil), list...)
	for _, m := range s.history {
		if _, ok := loaded[m.ID]; !ok {
			merged = append(merged, m)
		}
	}
	s.history = s.history[:0]
	s.byID = make(map[string]struct{}, len(merged))
	for _, m := range merged {
		s.addCanonical(m)
	}
}

// Subscribe joins the room's live channel. Each successful Subscribe is
// paired with exactly one leave, issued by Unsubscribe or Close.
func (s *Stream) Subscribe(onMessage func(Message)) error {
	if s.room.ID == "" {
		return ErrNoRoom
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.onMessage = onMessage
	if s.subscribed {
		return nil
	}
	if !s.live.JoinRoom(s.Key()) {
		return ErrNotConnected
	}
	s.subscribed = true
	return nil
}

func (s *Stream) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leave()
}

func (s *Stream) leave() {
	if !s.subscribed {
		return
	}
	s.subscribed = false
	s.live.LeaveRoom(s.Key())
}

func (s *Stream) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

// Deliver offers a live message to the stream. Messages for other rooms,
// duplicates and previews already superseded are dropped; it reports
// whether msg was accepted.
func (s *Stream) Deliver(event string, msg Message) bool {
	if msg.AdoptionListingID != s.room.AdoptionListingID {
		return false
	}
	if msg.ChatRoomID != "" && msg.ChatRoomID != s.room.ID {
		return false
	}
	advisory := event == dto.EventChatMessage || msg.Advisory || msg.ID == ""

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	var accepted bool
	if advisory {
		msg.Advisory = true
		accepted = s.addPreview(msg)
	} else {
		accepted = s.addCanonical(msg)
	}
	cb := s.onMessage
	s.mu.Unlock()

	if accepted && cb != nil {
		cb(msg)
	}
	return accepted
}

func (s *Stream) addPreview(msg Message) bool {
	corr := msg.CorrelationID
	if corr == "" {
		return false
	}
	if _, ok := s.canonical[corr]; ok {
		return false
	}
	if _, ok := s.pending[corr]; ok {
		return false
	}
	for _, p := range s.previews {
		if p.CorrelationID == corr {
			return false
		}
	}
	s.previews = append(s.previews, msg)
	return true
}

func (s *Stream) addCanonical(msg Message) bool {
	if _, ok := s.byID[msg.ID]; ok {
		return false
	}
	s.byID[msg.ID] = struct{}{}
	s.history = append(s.history, msg)
	if corr := msg.CorrelationID; corr != "" {
		s.canonical[corr] = struct{}{}
		s.dropPending(corr)
		for i, p := range s.previews {
			if p.CorrelationID == corr {
				s.previews = append(s.previews[:i], s.previews[i+1:]...)
				break
			}
		}
	}
	return true
}

func (s *Stream) dropPending(corr string) {
	if _, ok := s.pending[corr]; !ok {
		return
	}
	delete(s.pending, corr)
	for i, c := range s.order {
		if c == corr {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Send validates content, emits a live preview and writes the message
// durably under one correlation id. The live emit is best effort; a failed
// durable write leaves a Pending entry that Resend retries.
func (s *Stream) Send(ctx context.Context, content string) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, ErrEmptyContent
	}
	if s.room.ID == "" {
		return Message{}, ErrNoRoom
	}
	echo := Message{
		CorrelationID:     s.newID(),
		ChatRoomID:        s.room.ID,
		Content:           content,
		SenderID:          s.userID,
		AdoptionListingID: s.room.AdoptionListingID,
		Type:              "TEXT",
		Status:            "SENDING",
		Timestamp:         s.now().UTC(),
		Advisory:          true,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Message{}, ErrClosed
	}
	s.pending[echo.CorrelationID] = &Pending{Message: echo}
	s.order = append(s.order, echo.CorrelationID)
	s.mu.Unlock()

	if !s.live.Send(dto.EventChatMessage, echo) {
		s.logger.Debug("live preview not sent", "room_id", s.room.ID, "correlation_id", echo.CorrelationID)
	}
	return s.write(ctx, echo)
}

// Resend retries the durable write of a pending message with its original
// correlation id.
func (s *Stream) Resend(ctx context.Context, correlationID string) (Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Message{}, ErrClosed
	}
	p, ok := s.pending[correlationID]
	if !ok {
		s.mu.Unlock()
		return Message{}, ErrUnknownPending
	}
	echo := p.Message
	s.mu.Unlock()
	return s.write(ctx, echo)
}

func (s *Stream) write(ctx context.Context, echo Message) (Message, error) {
	msg, err := s.store.SendMessage(ctx, s.room.ID, dto.SendMessageRequest{
		Content:       echo.Content,
		SenderID:      echo.SenderID,
		CorrelationID: echo.CorrelationID,
		Type:          echo.Type,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		if err != nil {
			return Message{}, fmt.Errorf("stream: send: %w", err)
		}
		return msg, nil
	}
	if err != nil {
		if p, ok := s.pending[echo.CorrelationID]; ok {
			p.Err = err
		}
		s.logger.Warn("durable send failed", "room_id", s.room.ID, "correlation_id", echo.CorrelationID, "error", err, "retryable", store.IsRetryable(err))
		return Message{}, fmt.Errorf("stream: send: %w", err)
	}
	s.addCanonical(msg)
	s.dropPending(echo.CorrelationID)
	return msg, nil
}

// SendFile uploads an attachment and appends the resulting message.
func (s *Stream) SendFile(ctx context.Context, file store.Attachment) (Message, error) {
	if s.room.ID == "" {
		return Message{}, ErrNoRoom
	}
	if file.CorrelationID == "" {
		file.CorrelationID = s.newID()
	}
	msg, err := s.store.UploadAttachment(ctx, s.room.ID, file)
	if err != nil {
		return Message{}, fmt.Errorf("stream: upload: %w", err)
	}
	s.mu.Lock()
	if !s.closed {
		s.addCanonical(msg)
	}
	s.mu.Unlock()
	return msg, nil
}

// Messages returns canonical messages in arrival order.
func (s *Stream) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}

// Previews returns live previews with no canonical counterpart yet.
func (s *Stream) Previews() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.previews...)
}

// Pending returns local echoes in send order.
func (s *Stream) Pending() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pending, 0, len(s.order))
	for _, c := range s.order {
		out = append(out, *s.pending[c])
	}
	return out
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close leaves the room and freezes the stream. Safe to call repeatedly.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.leave()
	s.closed = true
	s.onMessage = nil
}
