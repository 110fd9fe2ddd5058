package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a message
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Role returns the chat-completion role for the sender.
func (s Sender) Role() string {
	if s == SenderUser {
		return "user"
	}
	return "assistant"
}

// Mode is the top-level UI mode of a session
type Mode int

const (
	AwaitingCredential Mode = iota
	Chatting
)

func (m Mode) String() string {
	switch m {
	case AwaitingCredential:
		return "awaiting-credential"
	case Chatting:
		return "chatting"
	default:
		return "unknown"
	}
}

// Message represents a single chat message
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps a message with a fresh ID and the current time.
func NewMessage(sender Sender, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    sender,
		Timestamp: time.Now(),
	}
}

// Session represents a chat session
type Session struct {
	ID         string    `json:"id"`
	StartTime  time.Time `json:"start_time"`
	Messages   []Message `json:"messages"`
	Credential string    `json:"-"`
	Mode       Mode      `json:"mode"`
	Pending    bool      `json:"pending"`

	// Epoch increments on every reset or clear.
	Epoch uint64 `json:"epoch"`
}

// Holder owns the single in-memory session. Every mutation is synchronous and
// cannot fail.
type Holder struct {
	mu       sync.Mutex
	greeting string
	s        Session
}

// NewHolder creates a session seeded with the greeting.
func NewHolder(greeting string) *Holder {
	h := &Holder{
		greeting: greeting,
		s: Session{
			ID:        uuid.NewString(),
			StartTime: time.Now(),
			Mode:      AwaitingCredential,
		},
	}
	h.s.Messages = h.seed()
	return h
}

func (h *Holder) seed() []Message {
	return []Message{NewMessage(SenderAssistant, h.greeting)}
}

// Snapshot returns a copy of the session; callers may keep it.
func (h *Holder) Snapshot() Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.s
	s.Messages = make([]Message, len(h.s.Messages))
	copy(s.Messages, h.s.Messages)
	return s
}

// SetCredential stores the credential and switches to chatting.
func (h *Holder) SetCredential(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s.Credential = text
	h.s.Mode = Chatting
}

// ResetSession clears the credential, returns to credential entry and
// reseeds the messages.
func (h *Holder) ResetSession() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s.Credential = ""
	h.s.Mode = AwaitingCredential
	h.s.Messages = h.seed()
	h.s.Epoch++
}

// ClearMessages reseeds the messages and keeps credential and mode.
func (h *Holder) ClearMessages() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s.Messages = h.seed()
	h.s.Epoch++
}

// AppendMessage adds msg to the end of the conversation.
func (h *Holder) AppendMessage(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s.Messages = append(h.s.Messages, msg)
}

// SetPending marks whether a reply is outstanding.
func (h *Holder) SetPending(pending bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s.Pending = pending
}

// Turn is the state captured when a user message opens an exchange.
type Turn struct {
	Epoch      uint64
	History    []Message // messages before the user message
	Credential string
}

// BeginSend appends msg and sets pending in one step. It reports false,
// changing nothing, when a reply is already pending.
func (h *Holder) BeginSend(msg Message) (Turn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.s.Pending {
		return Turn{}, false
	}

	turn := Turn{
		Epoch:      h.s.Epoch,
		History:    make([]Message, len(h.s.Messages)),
		Credential: h.s.Credential,
	}
	copy(turn.History, h.s.Messages)

	h.s.Messages = append(h.s.Messages, msg)
	h.s.Pending = true
	return turn, true
}

// CompleteSend appends reply and clears pending in one step. It returns the
// current epoch.
func (h *Holder) CompleteSend(reply Message) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s.Messages = append(h.s.Messages, reply)
	h.s.Pending = false
	return h.s.Epoch
}
