package chatbot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"EpsilonChat/internal/backend"
	"EpsilonChat/internal/session"
	"EpsilonChat/internal/telemetry"
)

// ErrorReply is appended in place of a reply whenever a call fails.
const ErrorReply = "Sorry, I encountered an error. Please check your API key and try again."

// Completer sends one completion request.
type Completer interface {
	Complete(ctx context.Context, credential string, req backend.ChatRequest) (backend.Completion, error)
}

// UsageRecorder stores the outcome of a call.
type UsageRecorder interface {
	Record(ctx context.Context, rec telemetry.UsageRecord) error
}

// Options configures a ChatBot
type Options struct {
	Model   string
	Persona string
	Logger  *slog.Logger
	Usage   UsageRecorder // optional
	Dark    bool          // initial theme
}

// ChatBot turns user intents into session mutations and completion calls.
type ChatBot struct {
	state     *session.Holder
	completer Completer
	model     string
	persona   string
	logger    *slog.Logger
	usage     UsageRecorder
	dark      atomic.Bool
}

// NewChatBot creates a controller over state.
func NewChatBot(state *session.Holder, completer Completer, opts Options) *ChatBot {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cb := &ChatBot{
		state:     state,
		completer: completer,
		model:     opts.Model,
		persona:   opts.Persona,
		logger:    logger,
		usage:     opts.Usage,
	}
	cb.dark.Store(opts.Dark)
	return cb
}

// State returns the session holder the controller mutates.
func (cb *ChatBot) State() *session.Holder { return cb.state }

// Dark reports the cosmetic theme flag.
func (cb *ChatBot) Dark() bool { return cb.dark.Load() }

// SubmitCredential stores a non-blank credential and enters chat mode.
// Blank input is ignored.
func (cb *ChatBot) SubmitCredential(text string) bool {
	key := strings.TrimSpace(text)
	if key == "" {
		return false
	}
	cb.state.SetCredential(key)
	cb.logger.Info("credential submitted")
	return true
}

// Reset forgets the credential and starts over with the greeting.
func (cb *ChatBot) Reset() {
	cb.state.ResetSession()
	cb.logger.Info("session reset")
}

// Clear reseeds the conversation and keeps the credential.
func (cb *ChatBot) Clear() {
	cb.state.ClearMessages()
	cb.logger.Info("conversation cleared")
}

// ToggleTheme flips between the light and dark themes.
func (cb *ChatBot) ToggleTheme() {
	cb.dark.Store(!cb.dark.Load())
}

// Exchange is one outbound call started by Begin.
type Exchange struct {
	Epoch      uint64
	Request    backend.ChatRequest
	credential string
}

// Begin appends the user message, marks the session pending and builds the
// request. It reports false, changing nothing, when text is blank or another
// call is still pending.
func (cb *ChatBot) Begin(text string) (*Exchange, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	turn, ok := cb.state.BeginSend(session.NewMessage(session.SenderUser, text))
	if !ok {
		cb.logger.Debug("send ignored while a reply is pending")
		return nil, false
	}

	return &Exchange{
		Epoch:      turn.Epoch,
		Request:    cb.buildRequest(turn.History, text),
		credential: turn.Credential,
	}, true
}

// buildRequest lays out the system persona, the prior history and the new
// user turn.
func (cb *ChatBot) buildRequest(history []session.Message, text string) backend.ChatRequest {
	messages := make([]backend.ChatMessage, 0, len(history)+2)
	messages = append(messages, backend.ChatMessage{Role: "system", Content: cb.persona})
	for _, msg := range history {
		messages = append(messages, backend.ChatMessage{
			Role:    msg.Sender.Role(),
			Content: msg.Content,
		})
	}
	messages = append(messages, backend.ChatMessage{Role: "user", Content: text})

	return backend.ChatRequest{
		Model:    cb.model,
		Messages: messages,
	}
}

// Resolve performs the call and returns the assistant message to append. It
// does not touch the session, so it may run off the UI goroutine.
func (cb *ChatBot) Resolve(ctx context.Context, ex *Exchange) session.Message {
	start := time.Now()
	completion, err := cb.completer.Complete(ctx, ex.credential, ex.Request)
	elapsed := time.Since(start)

	cb.recordUsage(ctx, ex, completion, err, start, elapsed)

	if err != nil {
		cb.logger.Error("failed to send message", "error", err, "duration_ms", elapsed.Milliseconds())
		return session.NewMessage(session.SenderAssistant, ErrorReply)
	}

	cb.logger.Info("reply received", "duration_ms", elapsed.Milliseconds(), "messages", len(ex.Request.Messages))
	return session.NewMessage(session.SenderAssistant, completion.Text)
}

// Finish appends reply and clears pending. The reply is kept even when the
// conversation was reset or cleared while it was in flight.
func (cb *ChatBot) Finish(ex *Exchange, reply session.Message) {
	if epoch := cb.state.CompleteSend(reply); epoch != ex.Epoch {
		cb.logger.Info("reply arrived after the conversation was cleared", "sent_epoch", ex.Epoch, "epoch", epoch)
	}
}

// SendMessage runs a whole exchange synchronously. It reports whether a call
// was made.
func (cb *ChatBot) SendMessage(ctx context.Context, text string) bool {
	ex, ok := cb.Begin(text)
	if !ok {
		return false
	}
	cb.Finish(ex, cb.Resolve(ctx, ex))
	return true
}

func (cb *ChatBot) recordUsage(ctx context.Context, ex *Exchange, c backend.Completion, err error, start time.Time, elapsed time.Duration) {
	if cb.usage == nil {
		return
	}

	rec := telemetry.UsageRecord{
		At:               start,
		Model:            ex.Request.Model,
		Success:          err == nil,
		Duration:         elapsed,
		PromptTokens:     c.Usage.PromptTokens,
		CompletionTokens: c.Usage.CompletionTokens,
	}

	var apiErr *backend.APIError
	switch {
	case err == nil, errors.Is(err, backend.ErrEmptyResponse):
		rec.StatusCode = 200
	case errors.As(err, &apiErr):
		rec.StatusCode = apiErr.StatusCode
	}

	if err := cb.usage.Record(ctx, rec); err != nil {
		cb.logger.Warn("failed to record usage", "error", err)
	}
}
