package relay

import (
	"sync"

	"wcsign/internal/domain"
)

// mailbox is an unbounded FIFO feeding a channel. Producers never block,
// so a slow consumer cannot stall the broker or a socket reader.
type mailbox struct {
	mu     sync.Mutex
	items  []domain.RelayMessage
	wake   chan struct{}
	out    chan domain.RelayMessage
	done   chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{
		wake: make(chan struct{}, 1),
		out:  make(chan domain.RelayMessage),
		done: make(chan struct{}),
	}
	go m.pump()
	return m
}

func (m *mailbox) push(msg domain.RelayMessage) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.items = append(m.items, msg)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) pump() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.items) == 0 {
			m.mu.Unlock()
			select {
			case <-m.wake:
				continue
			case <-m.done:
				return
			}
		}
		next := m.items[0]
		m.items = m.items[1:]
		m.mu.Unlock()

		select {
		case m.out <- next:
		case <-m.done:
			return
		}
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
}
