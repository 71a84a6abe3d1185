package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	mu  sync.Mutex
	err error
	n   int
}

func (f *fakePinger) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return f.err
}

func (f *fakePinger) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakePinger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	return Event{}
}

func TestCheck_PublishesTransitionsOnly(t *testing.T) {
	p := &fakePinger{}
	m := NewMonitor(p, time.Hour, logging.NewDiscardLogger())
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()
	ctx := context.Background()

	assert.Equal(t, StatusOnline, m.Check(ctx))
	assert.Equal(t, StatusOnline, recv(t, ch).Status)

	m.Check(ctx)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v", ev)
	default:
	}

	p.setErr(errors.New("down"))
	assert.Equal(t, StatusOffline, m.Check(ctx))
	ev := recv(t, ch)
	assert.Equal(t, StatusOffline, ev.Status)
	assert.EqualError(t, ev.Err, "down")
	assert.Equal(t, StatusOffline, m.Status())
}

func TestReport(t *testing.T) {
	m := NewMonitor(&fakePinger{}, time.Hour, logging.NewDiscardLogger())
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	m.Report(context.Background(), errors.New("timeout"))
	assert.Equal(t, StatusOffline, recv(t, ch).Status)
	m.Report(context.Background(), nil)
	assert.Equal(t, StatusOnline, recv(t, ch).Status)
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	m := NewMonitor(&fakePinger{}, time.Hour, logging.NewDiscardLogger())
	ch, unsubscribe := m.Subscribe()
	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)

	m.Check(context.Background())
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	p := &fakePinger{}
	m := NewMonitor(p, time.Hour, logging.NewDiscardLogger())
	_, unsubscribe := m.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer*3; i++ {
		if i%2 == 0 {
			p.setErr(nil)
		} else {
			p.setErr(errors.New("x"))
		}
		m.Check(context.Background())
	}
}

func TestRun_PingsUntilCancelled(t *testing.T) {
	p := &fakePinger{}
	m := NewMonitor(p, 10*time.Millisecond, logging.NewDiscardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "unknown", StatusUnknown.String())
	assert.Equal(t, "online", StatusOnline.String())
	assert.Equal(t, "offline", StatusOffline.String())
}
