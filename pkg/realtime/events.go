package realtime

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mahaj/taskchat/pkg/metrics"
	"github.com/mahaj/taskchat/pkg/model"
)

type subscription[T any] struct {
	fn     func(T)
	active atomic.Bool
}

// handlerList keeps subscribers of one event kind in registration order.
type handlerList[T any] struct {
	kind string
	mu   sync.Mutex
	subs []*subscription[T]
}

func (l *handlerList[T]) add(fn func(T)) func() {
	s := &subscription[T]{fn: fn}
	s.active.Store(true)

	l.mu.Lock()
	l.subs = append(l.subs, s)
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.active.Store(false)
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, cur := range l.subs {
				if cur == s {
					l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (l *handlerList[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// emit runs every active subscriber on the calling goroutine. A panicking
// subscriber is logged and skipped; the rest still run.
func (l *handlerList[T]) emit(log *zap.Logger, v T) {
	l.mu.Lock()
	snapshot := make([]*subscription[T], len(l.subs))
	copy(snapshot, l.subs)
	l.mu.Unlock()

	for _, s := range snapshot {
		if !s.active.Load() {
			continue
		}
		l.call(log, s.fn, v)
	}
}

func (l *handlerList[T]) call(log *zap.Logger, fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerPanics.WithLabelValues(l.kind).Inc()
			log.Error("chat event handler panicked",
				zap.String("kind", l.kind),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
		}
	}()
	fn(v)
}

// Events fans realtime events out to subscribers. Every On* method returns
// an unsubscribe func that is safe to call more than once.
type Events struct {
	log *zap.Logger

	message       handlerList[model.Message]
	typing        handlerList[model.TypingEvent]
	userOnline    handlerList[model.PresenceEvent]
	userOffline   handlerList[model.PresenceEvent]
	connected     handlerList[struct{}]
	disconnected  handlerList[error]
	joinedProject handlerList[model.ID]
	errs          handlerList[error]
	onlineUsers   handlerList[[]model.ID]
}

func NewEvents(log *zap.Logger) *Events {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Events{log: log}
	e.message.kind = "message"
	e.typing.kind = "typing"
	e.userOnline.kind = "user_online"
	e.userOffline.kind = "user_offline"
	e.connected.kind = "connected"
	e.disconnected.kind = "disconnected"
	e.joinedProject.kind = "joined_project"
	e.errs.kind = "error"
	e.onlineUsers.kind = "online_users"
	return e
}

func (e *Events) OnMessage(fn func(model.Message)) func() { return e.message.add(fn) }

func (e *Events) OnTyping(fn func(model.TypingEvent)) func() { return e.typing.add(fn) }

func (e *Events) OnUserOnline(fn func(model.PresenceEvent)) func() { return e.userOnline.add(fn) }

func (e *Events) OnUserOffline(fn func(model.PresenceEvent)) func() { return e.userOffline.add(fn) }

func (e *Events) OnConnected(fn func()) func() {
	return e.connected.add(func(struct{}) { fn() })
}

// OnDisconnected handlers get the reason, nil after an explicit Disconnect.
func (e *Events) OnDisconnected(fn func(reason error)) func() { return e.disconnected.add(fn) }

func (e *Events) OnJoinedProject(fn func(projectID model.ID)) func() {
	return e.joinedProject.add(fn)
}

// OnError receives server-reported errors and failed connection attempts.
func (e *Events) OnError(fn func(error)) func() { return e.errs.add(fn) }

func (e *Events) OnOnlineUsers(fn func(userIDs []model.ID)) func() {
	return e.onlineUsers.add(fn)
}

func (e *Events) emitMessage(m model.Message) { e.message.emit(e.log, m) }
func (e *Events) emitTyping(t model.TypingEvent) { e.typing.emit(e.log, t) }
func (e *Events) emitConnected() { e.connected.emit(e.log, struct{}{}) }
func (e *Events) emitDisconnected(reason error) { e.disconnected.emit(e.log, reason) }
func (e *Events) emitJoinedProject(projectID model.ID) { e.joinedProject.emit(e.log, projectID) }
func (e *Events) emitError(err error) { e.errs.emit(e.log, err) }
func (e *Events) emitOnlineUsers(ids []model.ID) { e.onlineUsers.emit(e.log, ids) }

func (e *Events) emitPresence(p model.PresenceEvent) {
	if p.Online {
		e.userOnline.emit(e.log, p)
		return
	}
	e.userOffline.emit(e.log, p)
}
