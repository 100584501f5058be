package sqlkit

import (
	"context"
	"reflect"
	"slices"
	"time"
)

// Event is a bitmask of observable connection events.
type Event uint16

// Observable events.
const (
	EventConnect Event = 1 << iota
	EventClose
	EventBegin
	EventCommit
	EventRollback
	EventSelect
	EventInsert
	EventUpdate
	EventDelete
	EventException

	EventTransaction = EventBegin | EventCommit | EventRollback
	EventQuery       = EventSelect | EventInsert | EventUpdate | EventDelete
	EventAll         = EventConnect | EventClose | EventTransaction | EventQuery | EventException
)

var eventNames = []struct {
	ev   Event
	name string
}{
	{EventConnect, "connect"},
	{EventClose, "close"},
	{EventBegin, "begin"},
	{EventCommit, "commit"},
	{EventRollback, "rollback"},
	{EventSelect, "select"},
	{EventInsert, "insert"},
	{EventUpdate, "update"},
	{EventDelete, "delete"},
	{EventException, "exception"},
}

// String returns the name of a single event, or the names of all set bits
// joined with "|".
func (e Event) String() string {
	var s string
	for _, n := range eventNames {
		if e&n.ev == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n.name
	}
	if s == "" {
		return "none"
	}
	return s
}

// eventOf returns the query event of a statement type.
func eventOf(t StmtType) Event {
	switch t {
	case Select:
		return EventSelect
	case Insert:
		return EventInsert
	case Update:
		return EventUpdate
	default:
		return EventDelete
	}
}

// Observer receives connection events. The subject is the *Connection for
// connection and transaction events, an Executed statement for query events
// and the error for EventException.
type Observer interface {
	Observe(ctx context.Context, ev Event, subject any)
}

// The ObserverFunc type is an adapter to allow the use of ordinary
// functions as observers.
type ObserverFunc func(ctx context.Context, ev Event, subject any)

// Observe calls f(ctx, ev, subject).
func (f ObserverFunc) Observe(ctx context.Context, ev Event, subject any) {
	f(ctx, ev, subject)
}

// Executed is implemented by statements passed to observers.
type Executed interface {
	Type() StmtType
	Elapsed() time.Duration
	String() string
}

type subscription struct {
	observer Observer
	mask     Event
}

// Attach registers o for the events in mask. Attaching an observer again
// replaces its mask.
func (c *Connection) Attach(o Observer, mask Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.observers {
		if sameObserver(c.observers[i].observer, o) {
			c.observers[i].mask = mask
			return
		}
	}
	c.observers = append(c.observers, subscription{observer: o, mask: mask})
}

// Detach unregisters o. Observers of non-comparable types, such as
// ObserverFunc, stay attached.
func (c *Connection) Detach(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = slices.DeleteFunc(c.observers, func(s subscription) bool {
		return sameObserver(s.observer, o)
	})
}

func (c *Connection) notify(ctx context.Context, ev Event, subject any) {
	c.mu.Lock()
	subs := slices.Clone(c.observers)
	c.mu.Unlock()
	for _, s := range subs {
		if s.mask&ev != 0 {
			s.observer.Observe(ctx, ev, subject)
		}
	}
}

// sameObserver compares observers without panicking on func values, which
// are never equal to anything. Comparable structs can still hold funcs in
// interface fields, so a failed comparison counts as different.
func sameObserver(a, b Observer) (same bool) {
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
