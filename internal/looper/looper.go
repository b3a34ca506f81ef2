// Package looper provides the single-threaded cooperative message loop the
// player engine is built on. Every component (controller, decoders, renderer)
// registers a Handler and communicates exclusively by posting messages;
// messages for one handler are dispatched in FIFO order of their due time
// (posting time plus optional delay), one at a time, on the loop goroutine.
package looper

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Handler receives messages posted to its HandlerID. HandleMessage is always
// invoked from the loop goroutine, never concurrently with itself or with any
// other handler on the same Looper.
type Handler interface {
	HandleMessage(msg any)
}

// HandlerID identifies a registered Handler. The zero value is never issued.
type HandlerID int64

// ErrStarted is returned by Start when the looper is already running.
var ErrStarted = errors.New("looper already started")

type entry struct {
	due    time.Time
	seq    uint64
	target HandlerID
	msg    any
}

// queue is a min-heap ordered by due time, with the posting sequence number
// breaking ties so equal due times stay FIFO.
type queue []*entry

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if !q[i].due.Equal(q[j].due) {
		return q[i].due.Before(q[j].due)
	}
	return q[i].seq < q[j].seq
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(*entry)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// syncMsg is an internal barrier message; the loop closes done once every
// message posted before it has been dispatched.
type syncMsg struct {
	done chan struct{}
}

// Looper owns a message queue and a set of handlers, dispatching on a single
// goroutine. All methods are safe for concurrent use.
type Looper struct {
	log *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	pending  queue
	handlers map[HandlerID]Handler
	nextID   HandlerID
	nextSeq  uint64
	started  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a stopped Looper. If log is nil, slog.Default is used.
func New(log *slog.Logger) *Looper {
	if log == nil {
		log = slog.Default()
	}
	l := &Looper{
		log:      log,
		handlers: make(map[HandlerID]Handler),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Start spawns the dispatch goroutine. It returns ErrStarted if the looper is
// already running; a stopped looper cannot be restarted.
func (l *Looper) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return ErrStarted
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.run()
	return nil
}

// Stop terminates the dispatch goroutine and waits for it to exit. Messages
// still queued are dropped. Stop is idempotent.
func (l *Looper) Stop() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.cancel()
	l.cond.Broadcast()
	l.wg.Wait()
}

// RegisterHandler adds h to the registry and returns its id.
func (l *Looper) RegisterHandler(h Handler) HandlerID {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	l.handlers[id] = h
	return id
}

// UnregisterHandler removes the handler; messages already queued for it are
// silently dropped at dispatch time.
func (l *Looper) UnregisterHandler(id HandlerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, id)
}

// Post enqueues msg for immediate dispatch to target.
func (l *Looper) Post(target HandlerID, msg any) {
	l.PostDelayed(target, msg, 0)
}

// PostDelayed enqueues msg for dispatch to target no earlier than delay from
// now. Messages with equal due times dispatch in posting order.
func (l *Looper) PostDelayed(target HandlerID, msg any, delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextSeq++
	heap.Push(&l.pending, &entry{
		due:    time.Now().Add(delay),
		seq:    l.nextSeq,
		target: target,
		msg:    msg,
	})
	l.cond.Signal()
}

// Sync blocks until every message due at the time of the call has been
// dispatched. Delayed messages not yet due are not waited for.
func (l *Looper) Sync() {
	done := make(chan struct{})
	l.PostDelayed(0, syncMsg{done: done}, 0)
	<-done
}

func (l *Looper) run() {
	defer l.wg.Done()

	for {
		l.mu.Lock()
		for {
			if l.ctx.Err() != nil {
				l.mu.Unlock()
				l.drainBarriers()
				return
			}
			if len(l.pending) == 0 {
				l.cond.Wait()
				continue
			}
			if wait := time.Until(l.pending[0].due); wait > 0 {
				// Wake up once the head entry comes due. Spurious
				// wakeups just re-check.
				t := time.AfterFunc(wait, l.cond.Signal)
				l.cond.Wait()
				t.Stop()
				continue
			}
			break
		}

		e := heap.Pop(&l.pending).(*entry)
		h := l.handlers[e.target]
		l.mu.Unlock()

		if s, ok := e.msg.(syncMsg); ok {
			close(s.done)
			continue
		}
		if h == nil {
			l.log.Debug("dropping message for unregistered handler",
				slog.Int64("handler", int64(e.target)))
			continue
		}
		h.HandleMessage(e.msg)
	}
}

// drainBarriers releases any Sync callers still parked when the loop exits.
func (l *Looper) drainBarriers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.pending {
		if s, ok := e.msg.(syncMsg); ok {
			close(s.done)
		}
	}
	l.pending = nil
}
