package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/agentswarm/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgTo(recipient string, n int) core.Message {
	return core.NewMessage("sender", recipient, core.Kind("test"), core.Data{"n": n})
}

func seq(t *testing.T, m core.Message) int {
	t.Helper()
	d, ok := m.Payload.(core.Data)
	require.True(t, ok)
	return d["n"].(int)
}

func TestRegister_Duplicate(t *testing.T) {
	b := New()
	first, err := b.Register("coder")
	require.NoError(t, err)

	_, err = b.Register("coder")
	require.ErrorIs(t, err, core.ErrDuplicateParticipant)

	// first registration remains intact
	require.NoError(t, b.Send(msgTo("coder", 1)))
	got, ok := first.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 1, seq(t, got))
	assert.Equal(t, []string{"coder"}, b.Participants())
}

func TestRegister_EmptyID(t *testing.T) {
	_, err := New().Register("")
	assert.ErrorIs(t, err, core.ErrEmptyParticipantID)
}

func TestSend_UnknownParticipant(t *testing.T) {
	b := New()
	err := b.Send(msgTo("ghost", 1))
	require.ErrorIs(t, err, core.ErrUnknownParticipant)
	assert.Contains(t, err.Error(), "ghost")
}

func TestSend_FIFO(t *testing.T) {
	b := New()
	mb, err := b.Register("r")
	require.NoError(t, err)

	const n = 500
	for i := 0; i < n; i++ {
		require.NoError(t, b.Send(msgTo("r", i)))
	}
	for i := 0; i < n; i++ {
		got, err := mb.Receive(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, seq(t, got))
	}
}

func TestSend_FIFOPerSenderUnderConcurrency(t *testing.T) {
	b := New()
	mb, err := b.Register("r")
	require.NoError(t, err)

	const senders, perSender = 8, 200
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				m := core.NewMessage(fmt.Sprintf("s%d", s), "r", core.Kind("test"), core.Data{"n": i})
				assert.NoError(t, b.Send(m))
			}
		}(s)
	}
	wg.Wait()

	last := map[string]int{}
	for i := 0; i < senders*perSender; i++ {
		got, ok := mb.TryReceive()
		require.True(t, ok)
		prev, seen := last[got.Sender]
		n := seq(t, got)
		if seen {
			require.Greater(t, n, prev, "out of order for %s", got.Sender)
		}
		last[got.Sender] = n
	}
	_, ok := mb.TryReceive()
	assert.False(t, ok)
}

func TestReceive_WakesOnEnqueue(t *testing.T) {
	b := New()
	mb, err := b.Register("r")
	require.NoError(t, err)

	got := make(chan core.Message, 1)
	go func() {
		m, err := mb.Receive(context.Background())
		if err == nil {
			got <- m
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Send(msgTo("r", 7)))

	select {
	case m := <-got:
		assert.Equal(t, 7, seq(t, m))
	case <-time.After(time.Second):
		t.Fatal("receiver was not woken")
	}
}

func TestReceive_ContextCancel(t *testing.T) {
	b := New()
	mb, err := b.Register("r")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = mb.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBroadcast_SnapshotAtCallTime(t *testing.T) {
	b := New()
	a, _ := b.Register("a")
	c, _ := b.Register("c")

	require.NoError(t, b.Broadcast(core.NewMessage("a", "", core.KindShutdown, nil)))

	late, _ := b.Register("late")

	for _, mb := range []*Mailbox{a, c} {
		m, ok := mb.TryReceive()
		require.True(t, ok, "mailbox %s missed broadcast", mb.ID())
		assert.Equal(t, core.KindShutdown, m.Kind)
	}
	_, ok := late.TryReceive()
	assert.False(t, ok, "late registration must not receive earlier broadcast")
}

func TestSend_BroadcastViaEmptyRecipient(t *testing.T) {
	b := New()
	a, _ := b.Register("a")
	c, _ := b.Register("c")

	require.NoError(t, b.Send(core.NewMessage("x", "", core.KindShutdown, nil)))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, c.Len())
}

func TestBroadcast_ExcludeSender(t *testing.T) {
	b := New(func(o *Options) { o.ExcludeSender = true })
	a, _ := b.Register("a")
	c, _ := b.Register("c")

	require.NoError(t, b.Broadcast(core.NewMessage("a", "", core.KindShutdown, nil)))
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, 1, c.Len())
}

func TestBroadcast_IndependentCopies(t *testing.T) {
	b := New()
	a, _ := b.Register("a")
	c, _ := b.Register("c")

	require.NoError(t, b.Broadcast(core.NewMessage("x", "", core.Kind("custom"), core.Data{"k": "v"})))
	ma, _ := a.TryReceive()
	mc, _ := c.TryReceive()
	ma.Payload.(core.Data)["k"] = "changed"
	assert.Equal(t, "v", mc.Payload.(core.Data)["k"])
	assert.Equal(t, ma.ID, mc.ID)
}

func TestDeregister_DiscardsAndWakes(t *testing.T) {
	b := New()
	mb, _ := b.Register("r")
	require.NoError(t, b.Send(msgTo("r", 1)))
	require.NoError(t, b.Send(msgTo("r", 2)))

	require.NoError(t, b.Deregister("r"))
	assert.Equal(t, 0, mb.Len())
	assert.True(t, mb.Closed())

	_, err := mb.Receive(context.Background())
	assert.ErrorIs(t, err, core.ErrMailboxClosed)

	assert.ErrorIs(t, b.Deregister("r"), core.ErrUnknownParticipant)
	assert.ErrorIs(t, b.Send(msgTo("r", 3)), core.ErrUnknownParticipant)
	assert.False(t, b.IsRegistered("r"))
}

func TestDeregister_WakesBlockedReceiver(t *testing.T) {
	b := New()
	mb, _ := b.Register("r")

	errCh := make(chan error, 1)
	go func() {
		_, err := mb.Receive(context.Background())
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Deregister("r"))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, core.ErrMailboxClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked receiver not woken by deregistration")
	}
}

func TestSend_BoundedMailbox(t *testing.T) {
	b := New(func(o *Options) { o.MailboxCapacity = 2 })
	_, _ = b.Register("r")
	other, _ := b.Register("o")

	require.NoError(t, b.Send(msgTo("r", 1)))
	require.NoError(t, b.Send(msgTo("r", 2)))
	assert.ErrorIs(t, b.Send(msgTo("r", 3)), core.ErrMailboxFull)

	// broadcast still reaches the mailbox with room and reports the full one
	err := b.Broadcast(core.NewMessage("x", "", core.KindShutdown, nil))
	assert.ErrorIs(t, err, core.ErrMailboxFull)
	assert.Equal(t, 1, other.Len())

	n, err := b.Pending("r")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSend_BoundedMailboxAcceptsSelfMessages(t *testing.T) {
	b := New(func(o *Options) { o.MailboxCapacity = 1 })
	mb, _ := b.Register("r")

	require.NoError(t, b.Send(msgTo("r", 1)))
	assert.ErrorIs(t, b.Send(msgTo("r", 2)), core.ErrMailboxFull)

	self := core.NewMessage("r", "r", core.KindTaskTimeout, core.TaskTimeout{TaskID: "t1"})
	require.NoError(t, b.Send(self))
	assert.Equal(t, 2, mb.Len())

	first, ok := mb.TryReceive()
	require.True(t, ok)
	assert.NotEqual(t, "r", first.Sender)
	second, ok := mb.TryReceive()
	require.True(t, ok)
	assert.Equal(t, core.KindTaskTimeout, second.Kind)
}

func TestSend_ConcurrentWithDeregister(t *testing.T) {
	b := New()
	_, _ = b.Register("r")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			err := b.Send(msgTo("r", i))
			if err != nil {
				assert.ErrorIs(t, err, core.ErrUnknownParticipant)
			}
		}
	}()
	time.Sleep(time.Millisecond)
	require.NoError(t, b.Deregister("r"))
	wg.Wait()
}
