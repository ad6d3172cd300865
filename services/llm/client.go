// Package llm is the completion-source boundary for the chat service.
package llm

import "context"

// Message is one conversation turn sent to the completion source.
type Message struct {
	Role    string
	Content string
}

// StreamCallback receives one text fragment. Returning an error aborts
// the stream and surfaces the error from ChatStream.
type StreamCallback func(fragment string) error

// CompletionStreamer streams chat completions fragment by fragment.
//
// Implementations prepend the system instruction to the conversation,
// invoke the backing model with streaming enabled, and call cb for every
// content delta in arrival order. ChatStream returns nil only after the
// upstream stream finished cleanly; context cancellation, transport
// failures, and callback errors all propagate.
type CompletionStreamer interface {
	ChatStream(ctx context.Context, system string, messages []Message, cb StreamCallback) error
}
