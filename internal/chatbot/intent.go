package chatbot

import "fmt"

// Intent is a user action produced by the presentation layer.
type Intent interface {
	intent()
}

type (
	SubmitCredential struct{ Text string }
	SendMessage      struct{ Text string }
	Reset            struct{}
	Clear            struct{}
	ToggleTheme      struct{}
)

func (SubmitCredential) intent() {}
func (SendMessage) intent() {}
func (Reset) intent() {}
func (Clear) intent() {}
func (ToggleTheme) intent() {}

// Dispatch applies an intent. For SendMessage it returns the started
// exchange, which the caller must Resolve and Finish; every other intent
// completes synchronously and returns nil.
func (cb *ChatBot) Dispatch(in Intent) *Exchange {
	switch in := in.(type) {
	case nil:
		cb.logger.Warn("ignored nil intent")
	case SubmitCredential:
		cb.SubmitCredential(in.Text)
	case SendMessage:
		if ex, ok := cb.Begin(in.Text); ok {
			return ex
		}
	case Reset:
		cb.Reset()
	case Clear:
		cb.Clear()
	case ToggleTheme:
		cb.ToggleTheme()
	default:
		panic(fmt.Sprintf("chatbot: unknown intent %T", in))
	}
	return nil
}
