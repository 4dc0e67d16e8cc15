package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackNotifier_PostsBlocks(t *testing.T) {
	var calls atomic.Int32
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &payload))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	notifier := NewSlackNotifier(srv.URL, WithSlackBackoff(time.Millisecond, 5*time.Millisecond, time.Second))
	require.NoError(t, notifier.Notify(context.Background(), testShop(), testTransitions()))

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "Demo Shop: 2 status change(s)", payload["text"])
	blocks, ok := payload["blocks"].([]any)
	require.True(t, ok)
	assert.Len(t, blocks, 4)
}

func TestSlackNotifier_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	notifier := NewSlackNotifier(srv.URL, WithSlackBackoff(time.Millisecond, 5*time.Millisecond, time.Second))
	assert.Error(t, notifier.Notify(context.Background(), testShop(), testTransitions()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewSlackNotifier_EmptyURLIsNoop(t *testing.T) {
	_, ok := NewSlackNotifier("").(NoopNotifier)
	assert.True(t, ok)
}

func TestBuildSlackMessages_SplitsLargeBatches(t *testing.T) {
	transitions := make([]model.Transition, 100)
	for i := range transitions {
		transitions[i] = model.Transition{Code: "task.x", ToLevel: model.LevelWarning}
	}

	messages := buildSlackMessages(testShop(), transitions)

	require.Len(t, messages, 3)
	assert.Len(t, messages[0].Blocks.BlockSet, 50)
	assert.Len(t, messages[2].Blocks.BlockSet, 2+4)
	assert.Contains(t, messages[2].Text, "part 3/3")
}
