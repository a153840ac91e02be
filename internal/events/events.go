// Package events carries the provider lifecycle events to host listeners.
package events

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
)

type Name string

const (
	Connect         Name = "connect"
	Disconnect      Name = "disconnect"
	AccountsChanged Name = "accountsChanged"
	ChainChanged    Name = "chainChanged"
)

// ConnectInfo is the payload of Connect.
type ConnectInfo struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

// DisconnectInfo is the payload of Disconnect.
type DisconnectInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Event is what channel subscribers receive. Payload is a ConnectInfo,
// DisconnectInfo, []common.Address or hexutil.Uint64 depending on Name.
type Event struct {
	Name    Name
	Payload interface{}
}

func (e Event) Accounts() []common.Address {
	accounts, _ := e.Payload.([]common.Address)
	return accounts
}

type Listener func(payload interface{})

// Handle identifies an attached listener.
type Handle uint64

type entry struct {
	handle Handle
	fn     Listener
}

// Emitter delivers each event synchronously to listeners in attach order,
// then to channel subscribers. Events emitted one after another are observed
// in that order by every listener.
type Emitter struct {
	mu        sync.RWMutex
	next      Handle
	listeners map[Name][]entry
	feed      event.Feed
}

func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[Name][]entry)}
}

func (e *Emitter) On(name Name, fn Listener) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.listeners[name] = append(e.listeners[name], entry{handle: e.next, fn: fn})
	return e.next
}

// Off detaches h and reports whether it was attached.
func (e *Emitter) Off(name Name, h Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.listeners[name]
	for i, l := range list {
		if l.handle == h {
			e.listeners[name] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Emitter) ListenerCount(name Name) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[name])
}

// Subscribe delivers every event to ch. Subscribers must keep draining ch;
// Emit blocks until each one has received the event.
func (e *Emitter) Subscribe(ch chan<- Event) event.Subscription {
	return e.feed.Subscribe(ch)
}

func (e *Emitter) Emit(name Name, payload interface{}) {
	e.mu.RLock()
	list := append([]entry(nil), e.listeners[name]...)
	e.mu.RUnlock()

	for _, l := range list {
		l.fn(payload)
	}
	e.feed.Send(Event{Name: name, Payload: payload})
}
