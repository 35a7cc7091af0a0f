package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Brownie44l1/smile-api/internal/logging"
	"github.com/Brownie44l1/smile-api/internal/model"
	"github.com/Brownie44l1/smile-api/internal/source"
)

func TestMessageFor(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"invalid image": {fmt.Errorf("%w: empty", source.ErrInvalidImage), TextNoValidImage},
		"not loaded":    {model.ErrModelNotLoaded, TextModelNotLoaded},
		"load":          {fmt.Errorf("%w: corrupt", model.ErrModelLoad), TextModelLoadFailed},
		"preprocess":    {fmt.Errorf("%w: zero size", model.ErrPreprocess), TextPreprocessFailed},
		"inference":     {fmt.Errorf("%w: NaN", model.ErrInference), TextInferenceFailed},
		"wrapped":       {logging.NewOperationError("usecase.detect", "id", model.ErrInference), TextInferenceFailed},
		"other":         {errors.New("boom"), TextUnexpected},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			msg := MessageFor(tc.err)
			assert.Equal(t, tc.want, msg.Text)
			assert.Equal(t, LevelError, msg.Level)
		})
	}
	assert.Equal(t, LevelInfo, MessageFor(nil).Level)
}

func TestResultMessage(t *testing.T) {
	smile, neutral := model.NewResult(0.87), model.NewResult(0.12)
	assert.Equal(t, "smile (0.87)", ResultMessage(&smile).Text)
	assert.Equal(t, "no-smile (0.12)", ResultMessage(&neutral).Text)
	assert.Equal(t, TextInferenceFailed, ResultMessage(nil).Text)
}

func TestRecorderAndMulti(t *testing.T) {
	first, second := &Recorder{}, &Recorder{}
	var out bytes.Buffer
	n := Multi{first, nil, second, NewWriterNotifier(&out)}

	require.NoError(t, n.Notify(context.Background(), Info(TextModelLoaded)))
	require.NoError(t, n.Notify(context.Background(), Error(TextInferenceFailed)))

	assert.Equal(t, first.Messages(), second.Messages())
	last, ok := first.Last()
	require.True(t, ok)
	assert.Equal(t, TextInferenceFailed, last.Text)
	assert.Equal(t, "model loaded\ninference failed\n", out.String())

	_, ok = (&Recorder{}).Last()
	assert.False(t, ok)
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, Message) error { return errors.New("closed") }

func TestMultiJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	err := Multi{failingNotifier{}, rec}.Notify(context.Background(), Info("x"))
	assert.ErrorContains(t, err, "closed")
	assert.Len(t, rec.Messages(), 1)
}

func TestLogNotifierLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), Info(TextModelLoaded)))
	require.NoError(t, n.Notify(context.Background(), Error(TextModelLoadFailed)))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, TextModelLoadFailed, entries[1].Message)
	assert.NoError(t, Nop{}.Notify(context.Background(), Info("ignored")))
}
