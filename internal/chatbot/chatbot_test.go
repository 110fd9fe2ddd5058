package chatbot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EpsilonChat/internal/backend"
	"EpsilonChat/internal/session"
	"EpsilonChat/internal/telemetry"
)

const (
	testGreeting = "Hello! I'm Epsilon, your AI assistant. How can I help you today?"
	testPersona  = "You are Epsilon."
	testModel    = "deepseek/deepseek-r1-0528:free"
)

// fakeCompleter records every call and answers with reply or err.
type fakeCompleter struct {
	mu     sync.Mutex
	calls  []backend.ChatRequest
	creds  []string
	reply  string
	usage  backend.Usage
	err    error
	onCall func()
}

func (f *fakeCompleter) Complete(_ context.Context, credential string, req backend.ChatRequest) (backend.Completion, error) {
	if f.onCall != nil {
		f.onCall()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	f.creds = append(f.creds, credential)
	if f.err != nil {
		return backend.Completion{}, f.err
	}
	return backend.Completion{Text: f.reply, Model: req.Model, Usage: f.usage}, nil
}

type memoryUsage struct {
	records []telemetry.UsageRecord
}

func (m *memoryUsage) Record(_ context.Context, rec telemetry.UsageRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func newTestBot(c Completer, usage UsageRecorder) *ChatBot {
	return NewChatBot(session.NewHolder(testGreeting), c, Options{
		Model:   testModel,
		Persona: testPersona,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Usage:   usage,
	})
}

type turn struct {
	Sender  session.Sender
	Content string
}

func turns(s session.Session) []turn {
	out := make([]turn, len(s.Messages))
	for i, m := range s.Messages {
		out[i] = turn{m.Sender, m.Content}
	}
	return out
}

func TestSendMessage_Success(t *testing.T) {
	fc := &fakeCompleter{reply: "Hi there"}
	cb := newTestBot(fc, nil)
	require.True(t, cb.SubmitCredential("sk-test"))

	require.True(t, cb.SendMessage(context.Background(), "Hello"))

	s := cb.State().Snapshot()
	want := []turn{
		{session.SenderAssistant, testGreeting},
		{session.SenderUser, "Hello"},
		{session.SenderAssistant, "Hi there"},
	}
	if diff := cmp.Diff(want, turns(s)); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, s.Pending)
	require.Len(t, fc.creds, 1)
	assert.Equal(t, "sk-test", fc.creds[0])
}

func TestSendMessage_FailureAppendsErrorReply(t *testing.T) {
	failures := map[string]error{
		"unauthorized": &backend.APIError{StatusCode: 401, Status: "401 Unauthorized"},
		"empty":        backend.ErrEmptyResponse,
		"transport":    errors.New("failed to send request: connection refused"),
	}

	for name, err := range failures {
		t.Run(name, func(t *testing.T) {
			cb := newTestBot(&fakeCompleter{err: err}, nil)
			cb.SubmitCredential("sk-test")

			require.True(t, cb.SendMessage(context.Background(), "Hello"))

			s := cb.State().Snapshot()
			want := []turn{
				{session.SenderAssistant, testGreeting},
				{session.SenderUser, "Hello"},
				{session.SenderAssistant, ErrorReply},
			}
			if diff := cmp.Diff(want, turns(s)); diff != "" {
				t.Errorf("messages mismatch (-want +got):\n%s", diff)
			}
			assert.False(t, s.Pending)
		})
	}
}

func TestSendMessage_BlankInputIsNoop(t *testing.T) {
	fc := &fakeCompleter{reply: "unused"}
	cb := newTestBot(fc, nil)
	cb.SubmitCredential("sk-test")

	for _, text := range []string{"", " ", "\t\n  "} {
		before := cb.State().Snapshot()
		assert.False(t, cb.SendMessage(context.Background(), text))
		after := cb.State().Snapshot()

		assert.Len(t, after.Messages, len(before.Messages))
		assert.Equal(t, before.Pending, after.Pending)
	}
	assert.Empty(t, fc.calls)
}

func TestSendMessage_PendingOnlyDuringCall(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	cb := newTestBot(fc, nil)
	cb.SubmitCredential("sk-test")

	var pendingDuringCall bool
	var countDuringCall int
	fc.onCall = func() {
		s := cb.State().Snapshot()
		pendingDuringCall = s.Pending
		countDuringCall = len(s.Messages)
	}

	assert.False(t, cb.State().Snapshot().Pending)
	cb.SendMessage(context.Background(), "Hello")

	assert.True(t, pendingDuringCall)
	assert.Equal(t, 2, countDuringCall, "user message is appended before the call")
	assert.False(t, cb.State().Snapshot().Pending)
}

func TestSendMessage_PayloadMapsHistory(t *testing.T) {
	fc := &fakeCompleter{reply: "fine"}
	cb := newTestBot(fc, nil)
	cb.SubmitCredential("sk-test")

	ctx := context.Background()
	cb.SendMessage(ctx, "first")
	prior := cb.State().Snapshot()
	cb.SendMessage(ctx, "  second  ")

	require.Len(t, fc.calls, 2)
	req := fc.calls[1]
	assert.Equal(t, testModel, req.Model)
	require.GreaterOrEqual(t, len(req.Messages), 2)

	assert.Equal(t, backend.ChatMessage{Role: "system", Content: testPersona}, req.Messages[0])
	assert.Equal(t, backend.ChatMessage{Role: "user", Content: "  second  "}, req.Messages[len(req.Messages)-1])

	var want []backend.ChatMessage
	for _, m := range prior.Messages {
		want = append(want, backend.ChatMessage{Role: m.Sender.Role(), Content: m.Content})
	}
	if diff := cmp.Diff(want, req.Messages[1:len(req.Messages)-1]); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestBegin_RefusesWhilePending(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	cb := newTestBot(fc, nil)
	cb.SubmitCredential("sk-test")

	ex, ok := cb.Begin("one")
	require.True(t, ok)

	_, ok = cb.Begin("two")
	assert.False(t, ok)
	assert.Len(t, cb.State().Snapshot().Messages, 2)

	cb.Finish(ex, cb.Resolve(context.Background(), ex))
	assert.Len(t, fc.calls, 1)

	_, ok = cb.Begin("three")
	assert.True(t, ok)
}

func TestFinish_KeepsReplyAfterResetOrClear(t *testing.T) {
	tests := []struct {
		name   string
		intent Intent
		mode   session.Mode
	}{
		{name: "clear", intent: Clear{}, mode: session.Chatting},
		{name: "reset", intent: Reset{}, mode: session.AwaitingCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := newTestBot(&fakeCompleter{reply: "late"}, nil)
			cb.SubmitCredential("sk-test")

			ex, ok := cb.Begin("Hello")
			require.True(t, ok)

			cb.Dispatch(tt.intent)
			assert.True(t, cb.State().Snapshot().Pending)
			cb.Finish(ex, cb.Resolve(context.Background(), ex))

			s := cb.State().Snapshot()
			want := []turn{
				{session.SenderAssistant, testGreeting},
				{session.SenderAssistant, "late"},
			}
			if diff := cmp.Diff(want, turns(s)); diff != "" {
				t.Errorf("messages mismatch (-want +got):\n%s", diff)
			}
			assert.False(t, s.Pending)
			assert.Equal(t, tt.mode, s.Mode)
		})
	}
}

func TestSubmitCredential(t *testing.T) {
	cb := newTestBot(&fakeCompleter{}, nil)

	assert.False(t, cb.SubmitCredential(""))
	assert.False(t, cb.SubmitCredential("   "))
	assert.Equal(t, session.AwaitingCredential, cb.State().Snapshot().Mode)

	assert.True(t, cb.SubmitCredential("  sk-or-v1-abc \n"))
	s := cb.State().Snapshot()
	assert.Equal(t, session.Chatting, s.Mode)
	assert.Equal(t, "sk-or-v1-abc", s.Credential)
}

func TestDispatch(t *testing.T) {
	fc := &fakeCompleter{reply: "Hi there"}
	cb := newTestBot(fc, nil)

	assert.Nil(t, cb.Dispatch(nil))
	assert.Nil(t, cb.Dispatch(SubmitCredential{Text: "sk-test"}))
	assert.Equal(t, session.Chatting, cb.State().Snapshot().Mode)

	assert.Nil(t, cb.Dispatch(SendMessage{Text: "   "}))

	ex := cb.Dispatch(SendMessage{Text: "Hello"})
	require.NotNil(t, ex)
	cb.Finish(ex, cb.Resolve(context.Background(), ex))
	assert.Len(t, cb.State().Snapshot().Messages, 3)

	assert.Nil(t, cb.Dispatch(Clear{}))
	s := cb.State().Snapshot()
	assert.Len(t, s.Messages, 1)
	assert.Equal(t, "sk-test", s.Credential)

	assert.False(t, cb.Dark())
	cb.Dispatch(ToggleTheme{})
	assert.True(t, cb.Dark())
	cb.Dispatch(ToggleTheme{})
	assert.False(t, cb.Dark())

	cb.Dispatch(Reset{})
	s = cb.State().Snapshot()
	assert.Empty(t, s.Credential)
	assert.Equal(t, session.AwaitingCredential, s.Mode)
	assert.Len(t, s.Messages, 1)
}

func TestUsageIsRecorded(t *testing.T) {
	usage := &memoryUsage{}
	fc := &fakeCompleter{reply: "ok", usage: backend.Usage{PromptTokens: 7, CompletionTokens: 2}}
	cb := newTestBot(fc, usage)
	cb.SubmitCredential("sk-test")
	ctx := context.Background()

	cb.SendMessage(ctx, "Hello")
	fc.err = &backend.APIError{StatusCode: 401, Status: "401 Unauthorized"}
	cb.SendMessage(ctx, "Again")

	require.Len(t, usage.records, 2)
	assert.True(t, usage.records[0].Success)
	assert.Equal(t, 200, usage.records[0].StatusCode)
	assert.Equal(t, int64(7), usage.records[0].PromptTokens)
	assert.Equal(t, testModel, usage.records[0].Model)

	assert.False(t, usage.records[1].Success)
	assert.Equal(t, 401, usage.records[1].StatusCode)
}
