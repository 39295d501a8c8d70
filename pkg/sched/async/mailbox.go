package async

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"taskloop/pkg/sched"
)

type cmdKind uint8

const (
	cmdRun cmdKind = iota + 1
	cmdRunAt
	cmdSpawn
	cmdWake
	cmdStop
)

func (k cmdKind) String() string {
	switch k {
	case cmdRun:
		return "run"
	case cmdRunAt:
		return "run_at"
	case cmdSpawn:
		return "spawn"
	case cmdWake:
		return "wake"
	case cmdStop:
		return "stop"
	default:
		return "unknown"
	}
}

type command struct {
	kind  cmdKind
	task  sched.Task
	at    time.Time
	spawn func(*Co)
}

// mailbox is an unbounded multi-producer single-consumer command queue.
//
// Senders never block. notify carries at most one pending signal; the
// consumer re-checks the queue after every receive so extra or stale
// signals are harmless.
type mailbox struct {
	mu     sync.Mutex
	q      *queue.Queue
	closed bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{q: queue.New(), notify: make(chan struct{}, 1)}
}

// send enqueues c. It reports false if the mailbox is closed.
func (m *mailbox) send(c command) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.q.Add(c)
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) tryRecv() (command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.q.Length() == 0 {
		return command{}, false
	}
	return m.q.Remove().(command), true
}

// recv blocks until a command is available.
func (m *mailbox) recv() command {
	for {
		if c, ok := m.tryRecv(); ok {
			return c
		}
		<-m.notify
	}
}

// close rejects further sends and returns the number of commands dropped.
func (m *mailbox) close() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	n := m.q.Length()
	m.q = queue.New()
	return n
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Length()
}
