package live

import (
	"sync"

	"github.com/livetree/livetree/pkg/selector"
	"github.com/livetree/livetree/pkg/watch"
)

// Watch is one active live selector watch plus the clients subscribed to it.
type Watch struct {
	ID       string
	Selector string
	Single   bool
	Engine   *watch.Engine
	Query    *selector.Query
	Clients  map[*Client]struct{}
	Mu       sync.RWMutex

	subs []*watch.Subscription // engine listeners feeding Broadcast
}

type Client struct {
	// abstract over the ws conn to avoid import cycles
	Send func(msgType string, payload any) error
}

// Deps lets the api layer inject broadcasting without global singletons.
type Deps struct {
	Broadcast func(w *Watch, event string, payload any)
}
