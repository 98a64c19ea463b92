package shutdown

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"polaroid-extractor/internal/logger"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

type named struct {
	name string
	rec  *recorder
	wait time.Duration
}

func (n named) Shutdown() {
	time.Sleep(n.wait)
	n.rec.add(n.name)
}

func TestShutdownRunsInReverseOrderOnce(t *testing.T) {
	rec := &recorder{}
	m := NewManager(logger.Nop())
	m.Register("first", named{name: "first", rec: rec})
	m.Register("second", named{name: "second", rec: rec})

	m.Shutdown()
	m.Shutdown()

	assert.Equal(t, []string{"second", "first"}, rec.order)
	assert.Error(t, m.Context().Err())
	select {
	case <-m.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestShutdownMovesOnAfterTimeout(t *testing.T) {
	rec := &recorder{}
	m := NewManager(logger.Nop())
	m.SetTimeout(20 * time.Millisecond)
	m.Register("fast", named{name: "fast", rec: rec})
	m.Register("slow", named{name: "slow", rec: rec, wait: time.Second})

	start := time.Now()
	m.Shutdown()

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"fast"}, rec.order)
}

func TestListenStopIsIdempotent(t *testing.T) {
	m := NewManager(logger.Nop())
	stop := m.Listen()
	stop()
	stop()

	select {
	case <-m.Done():
		t.Fatal("stopping the listener must not shut down")
	default:
	}
}
