package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/agentswarm/bus"
	"github.com/hupe1980/agentswarm/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAsync(ctx context.Context, p core.Participant, inbox core.Inbox) <-chan error {
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, inbox) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not terminate")
		return nil
	}
}

func TestServe_ContainsHandlerErrors(t *testing.T) {
	b := bus.New()
	mb, err := b.Register("worker")
	require.NoError(t, err)

	var mu sync.Mutex
	var handled []string
	var reported []error

	a := NewFuncAgent("worker", "coder", b, func(_ context.Context, msg core.Message) error {
		mu.Lock()
		handled = append(handled, msg.ID)
		mu.Unlock()
		if d, ok := msg.Payload.(core.Data); ok && d["fail"] == true {
			return errors.New("boom")
		}
		return nil
	}, func(o *Options) {
		o.OnError = func(_ core.Message, err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		}
	})

	done := runAsync(context.Background(), a, mb)

	require.NoError(t, b.Send(core.NewMessage("t", "worker", core.Kind("job"), core.Data{"fail": true})))
	require.NoError(t, b.Send(core.NewMessage("t", "worker", core.Kind("job"), core.Data{"fail": false})))
	require.NoError(t, b.Broadcast(core.NewMessage("t", "", core.KindShutdown, nil)))

	require.NoError(t, waitDone(t, done))
	assert.Len(t, handled, 2)
	assert.EqualValues(t, 2, a.Processed())
	assert.EqualValues(t, 1, a.Failures())
	require.Len(t, reported, 1)
	assert.EqualError(t, reported[0], "boom")
}

func TestServe_ContainsPanics(t *testing.T) {
	b := bus.New()
	mb, _ := b.Register("p")

	var calls atomic.Int32
	var perr error
	a := NewFuncAgent("p", "coder", b, func(context.Context, core.Message) error {
		if calls.Add(1) == 1 {
			panic("bad message")
		}
		return nil
	}, func(o *Options) {
		o.OnError = func(_ core.Message, err error) { perr = err }
	})

	done := runAsync(context.Background(), a, mb)
	require.NoError(t, b.Send(core.NewMessage("t", "p", core.Kind("job"), nil)))
	require.NoError(t, b.Send(core.NewMessage("t", "p", core.Kind("job"), nil)))
	require.NoError(t, b.Broadcast(core.NewMessage("t", "", core.KindShutdown, nil)))
	require.NoError(t, waitDone(t, done))

	assert.EqualValues(t, 2, calls.Load())
	var hp *HandlerPanicError
	require.ErrorAs(t, perr, &hp)
	assert.Equal(t, "bad message", hp.Value)
	assert.NotEmpty(t, hp.Stack)
}

func TestServe_ShutdownStopsBeforeLaterMessages(t *testing.T) {
	b := bus.New()
	mb, _ := b.Register("w")

	var calls atomic.Int32
	a := NewFuncAgent("w", "coder", b, func(context.Context, core.Message) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, b.Send(core.NewMessage("t", "w", core.Kind("job"), nil)))
	require.NoError(t, b.Broadcast(core.NewMessage("t", "", core.KindShutdown, nil)))
	require.NoError(t, b.Send(core.NewMessage("t", "w", core.Kind("job"), nil)))

	require.NoError(t, a.Run(context.Background(), mb))
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1, mb.Len(), "message after shutdown stays unconsumed")
	assert.False(t, a.Running())
}

func TestServe_ContextCancel(t *testing.T) {
	b := bus.New()
	mb, _ := b.Register("w")
	a := NewFuncAgent("w", "coder", b, func(context.Context, core.Message) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, a, mb)
	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, waitDone(t, done), context.Canceled)
}

func TestServe_MailboxClosed(t *testing.T) {
	b := bus.New()
	mb, _ := b.Register("w")
	a := NewFuncAgent("w", "coder", b, func(context.Context, core.Message) error { return nil })

	done := runAsync(context.Background(), a, mb)
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Deregister("w"))
	assert.NoError(t, waitDone(t, done))
}

func TestServe_NeverConcurrentWithItself(t *testing.T) {
	b := bus.New()
	mb, _ := b.Register("w")

	var active, maxActive atomic.Int32
	a := NewFuncAgent("w", "coder", b, func(context.Context, core.Message) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return nil
	})

	done := runAsync(context.Background(), a, mb)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				assert.NoError(t, b.Send(core.NewMessage("t", "w", core.Kind("job"), nil)))
			}
		}()
	}
	wg.Wait()
	require.Eventually(t, func() bool { return a.Processed() == 40 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, b.Broadcast(core.NewMessage("t", "", core.KindShutdown, nil)))
	require.NoError(t, waitDone(t, done))
	assert.EqualValues(t, 1, maxActive.Load())
}

func TestServe_AlreadyRunning(t *testing.T) {
	b := bus.New()
	mb, _ := b.Register("w")
	a := NewFuncAgent("w", "coder", b, func(context.Context, core.Message) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, a, mb)
	require.Eventually(t, a.Running, time.Second, time.Millisecond)

	assert.ErrorIs(t, a.Run(ctx, mb), ErrAlreadyRunning)
	cancel()
	_ = waitDone(t, done)
}

func TestHelpers_StampSender(t *testing.T) {
	b := bus.New()
	a := NewBaseAgent("controller", "controller", b)
	other, _ := b.Register("user")
	self, _ := b.Register("controller")

	require.NoError(t, a.Send("user", core.KindUserOutput, core.UserOutput{Text: "hi", Final: true}))
	m, ok := other.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "controller", m.Sender)
	assert.Equal(t, "user", m.Recipient)

	require.NoError(t, a.RequestShutdown())
	for _, mb := range []*bus.Mailbox{other, self} {
		m, ok := mb.TryReceive()
		require.True(t, ok)
		assert.Equal(t, core.KindShutdown, m.Kind)
		assert.Equal(t, "controller", m.Sender)
		assert.True(t, m.IsBroadcast())
	}

	assert.ErrorIs(t, a.Send("nobody", core.KindUserOutput, nil), core.ErrUnknownParticipant)
	assert.ErrorIs(t, a.Send("", core.KindUserOutput, nil), core.ErrUnknownParticipant)
}
