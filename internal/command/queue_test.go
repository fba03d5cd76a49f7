package command

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := NewQueue(t.TempDir())
	require.NoError(t, err)
	return q
}

func TestKnown(t *testing.T) {
	for _, verb := range []string{"status", "portfolio", "defcon", "hold", "resume",
		"yes", "no", "refresh", "shutdown", "estop", "mode", "interval"} {
		assert.True(t, Known(verb), verb)
	}
	assert.False(t, Known("reboot"))
	assert.False(t, Known(""))
}

func TestEnqueueDequeueAck(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue(Command{ID: "c1", Verb: VerbHold}))

	cmd, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, "c1", cmd.ID)
	assert.Equal(t, VerbHold, cmd.Verb)
	assert.False(t, cmd.ReceivedAt.IsZero())

	// dequeued file is in in-flight, not pending
	assert.NoFileExists(t, filepath.Join(q.root, pendingDir, "c1.json"))
	assert.FileExists(t, filepath.Join(q.root, inflightDir, "c1.json"))

	require.NoError(t, q.Ack(cmd))
	assert.NoFileExists(t, filepath.Join(q.root, inflightDir, "c1.json"))

	next, err := q.Dequeue()
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestEnqueue_RequiresIDAndVerb(t *testing.T) {
	q := newTestQueue(t)

	assert.Error(t, q.Enqueue(Command{Verb: VerbHold}))
	assert.Error(t, q.Enqueue(Command{ID: "c1"}))
}

func TestDequeue_OldestFirst(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue(Command{ID: "b", Verb: VerbResume}))
	require.NoError(t, q.Enqueue(Command{ID: "a", Verb: VerbHold}))

	first, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "a", first.ID)

	second, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "b", second.ID)
}

func TestDequeue_MalformedMovedToFailed(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, os.WriteFile(filepath.Join(q.root, pendingDir, "bad.json"),
		[]byte("{not json"), 0o644))
	require.NoError(t, q.Enqueue(Command{ID: "good", Verb: VerbStatus}))

	cmd, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, "good", cmd.ID)

	assert.FileExists(t, filepath.Join(q.root, failedDir, "bad.json"))
}

func TestReclaim_ReturnsStaleInflight(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue(Command{ID: "stale", Verb: VerbYes}))
	cmd, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, cmd)

	// a crash: command never acked. Age the file past the reclaim window.
	old := time.Now().Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(cmd.inflightPath, old, old))

	n, err := q.Reclaim()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, filepath.Join(q.root, pendingDir, "stale.json"))

	again, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "stale", again.ID)
}

func TestReclaim_LeavesFreshInflight(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue(Command{ID: "live", Verb: VerbNo}))
	_, err := q.Dequeue()
	require.NoError(t, err)

	n, err := q.Reclaim()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.FileExists(t, filepath.Join(q.root, inflightDir, "live.json"))
}

func TestRespondAwaitResponse(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Respond("c9", map[string]any{"defcon": 3}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	body, err := q.AwaitResponse(ctx, "c9")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.EqualValues(t, 3, got["defcon"])

	// response is consumed
	assert.NoFileExists(t, filepath.Join(q.root, responsesDir, "c9.json"))
}

func TestAwaitResponse_Timeout(t *testing.T) {
	q := newTestQueue(t)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_, err := q.AwaitResponse(ctx, "never")
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestArg(t *testing.T) {
	cmd := Command{Args: []string{"semi_auto"}}
	assert.Equal(t, "semi_auto", cmd.Arg(0))
	assert.Equal(t, "", cmd.Arg(1))
	assert.Equal(t, "", cmd.Arg(-1))
}

func TestPoller_DeliversCommands(t *testing.T) {
	q := newTestQueue(t)
	p := NewPoller(q, 4)
	p.tick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.NoError(t, q.Enqueue(Command{ID: "c1", Verb: VerbRefresh}))

	select {
	case cmd := <-p.Commands():
		assert.Equal(t, VerbRefresh, cmd.Verb)
		require.NoError(t, q.Ack(cmd))
	case <-time.After(2 * time.Second):
		t.Fatal("command never delivered")
	}
}

func TestPoller_Submit(t *testing.T) {
	q := newTestQueue(t)
	p := NewPoller(q, 1)

	ctx := context.Background()
	require.NoError(t, p.Submit(ctx, &Command{ID: "x", Verb: VerbStatus}))

	cmd := <-p.Commands()
	assert.Equal(t, VerbStatus, cmd.Verb)
}
