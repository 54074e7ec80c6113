package goroutine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
	done  chan struct{}
}

func (l *recordingLogger) Errorf(format string, args ...interface{}) {
	l.mu.Lock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
	l.mu.Unlock()
	close(l.done)
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	l := &recordingLogger{done: make(chan struct{})}
	rh := NewRecoveryHandler(l)

	rh.SafeGo("sweeper", func() { panic("boom") })

	select {
	case <-l.done:
	case <-time.After(time.Second):
		t.Fatal("panic не залогирована")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	require.Len(t, l.lines, 1)
	assert.Contains(t, l.lines[0], "sweeper")
	assert.Contains(t, l.lines[0], "boom")
}

func TestSafeGoWithContext_PassesContext(t *testing.T) {
	rh := NewRecoveryHandler(&recordingLogger{done: make(chan struct{})})
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan context.Context, 1)

	rh.SafeGoWithContext(ctx, "worker", func(c context.Context) { got <- c })

	c := <-got
	cancel()
	<-c.Done()
	assert.ErrorIs(t, c.Err(), context.Canceled)
}
