package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/Brownie44l1/smile-api/internal/model"
	"github.com/Brownie44l1/smile-api/internal/source"
)

// Level tells a notifier how to present a message.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

const (
	TextModelLoaded      = "model loaded"
	TextModelLoadFailed  = "model load failed"
	TextNoValidImage     = "no valid image"
	TextPreprocessFailed = "preprocessing failed"
	TextInferenceFailed  = "inference failed"
	TextModelNotLoaded   = "model not loaded"
	TextUnexpected       = "unexpected error"
)

// Message is a human-readable status line.
type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

func (m Message) String() string { return m.Text }

// Notifier receives status lines meant for the person using the service.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

func Info(text string) Message  { return Message{Level: LevelInfo, Text: text} }
func Error(text string) Message { return Message{Level: LevelError, Text: text} }

// MessageFor maps an error to the message shown to the user. A nil error
// yields an empty info message.
func MessageFor(err error) Message {
	switch {
	case err == nil:
		return Info("")
	case errors.Is(err, source.ErrInvalidImage):
		return Error(TextNoValidImage)
	case errors.Is(err, model.ErrModelNotLoaded):
		return Error(TextModelNotLoaded)
	case errors.Is(err, model.ErrModelLoad):
		return Error(TextModelLoadFailed)
	case errors.Is(err, model.ErrPreprocess):
		return Error(TextPreprocessFailed)
	case errors.Is(err, model.ErrInference):
		return Error(TextInferenceFailed)
	default:
		return Error(TextUnexpected)
	}
}

// ResultMessage formats a verdict, e.g. "smile (0.87)".
func ResultMessage(result *model.Result) Message {
	if result == nil {
		return Error(TextInferenceFailed)
	}
	return Info(result.String())
}

// LogNotifier writes messages to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	if msg.Level == LevelError {
		n.logger.Warn(msg.Text)
		return nil
	}
	n.logger.Info(msg.Text)
	return nil
}

// WriterNotifier prints one message per line, used by the classify command.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Notify(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintln(n.w, msg.Text)
	return err
}

// Recorder keeps every message; the HTTP layer and tests read them back.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Last returns the most recent message, if any.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return Message{}, false
	}
	return r.messages[len(r.messages)-1], true
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }
