package notify

import (
	"sync"

	"showdown-mirror/game"
)

const defaultQueueSize = 256

// Queue hands notifications to a target Listener on whatever context the
// target needs. Each call is wrapped in a closure and passed to post from a
// dedicated goroutine, so the caller only ever pays for a channel send.
// Order is preserved.
type Queue struct {
	target Listener
	post   func(func())

	mu     sync.Mutex
	closed bool
	ch     chan func()
	done   chan struct{}
}

// Direct runs fn on the queue's own goroutine.
func Direct(fn func()) { fn() }

// NewQueue starts a queue. A nil post means Direct; size <= 0 uses a default.
func NewQueue(target Listener, post func(func()), size int) *Queue {
	if post == nil {
		post = Direct
	}
	if size <= 0 {
		size = defaultQueueSize
	}
	q := &Queue{
		target: target,
		post:   post,
		ch:     make(chan func(), size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for fn := range q.ch {
		q.post(fn)
	}
}

func (q *Queue) enqueue(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.ch <- fn
}

// Close stops accepting notifications and waits until the queued ones have
// been posted. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}

// Do queues an arbitrary call behind the pending notifications. It is how
// callers outside the Listener surface reach a target that needs post.
func (q *Queue) Do(fn func()) {
	q.enqueue(fn)
}

func (q *Queue) SlotAssigned(side game.Side) {
	q.enqueue(func() { q.target.SlotAssigned(side) })
}

func (q *Queue) Switched(pos game.Position, name string, level, hpPercent int) {
	q.enqueue(func() { q.target.Switched(pos, name, level, hpPercent) })
}

func (q *Queue) HPChanged(pos game.Position, prevPercent, newPercent int) {
	q.enqueue(func() { q.target.HPChanged(pos, prevPercent, newPercent) })
}

func (q *Queue) Fainted(pos game.Position, name string) {
	q.enqueue(func() { q.target.Fainted(pos, name) })
}

func (q *Queue) BattleStarted() {
	q.enqueue(q.target.BattleStarted)
}

func (q *Queue) TurnChanged(turn int) {
	q.enqueue(func() { q.target.TurnChanged(turn) })
}

func (q *Queue) Request(payload string) {
	q.enqueue(func() { q.target.Request(payload) })
}

// BattleEnded is forwarded only when the target implements EndListener.
func (q *Queue) BattleEnded(winner string) {
	if _, ok := q.target.(EndListener); !ok {
		return
	}
	q.enqueue(func() { NotifyEnded(q.target, winner) })
}
