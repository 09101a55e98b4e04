package server

import (
	"fmt"
	"net/http"
	"parklot/internal"
	"parklot/metrics/counters"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Feed pushes session lifecycle events to connected websocket clients, the
// live board view of the lot.
type Feed struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]bool
	mux      sync.Mutex
	logger   internal.LogHandler
}

func NewFeed() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

func (f *Feed) SetLogger(logger internal.LogHandler) {
	f.logger = logger
}

func (f *Feed) HandleRequest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if f.logger != nil {
			f.logger.Error("feed: upgrade failed", err)
		}
		return
	}
	f.mux.Lock()
	f.clients[conn] = true
	count := len(f.clients)
	f.mux.Unlock()
	counters.ObserveFeedConnections(count)
	if f.logger != nil {
		f.logger.Debug(fmt.Sprintf("feed: client connected from %s", r.RemoteAddr))
	}

	// drain reads so close frames are processed, drop the client on error
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.drop(conn)
				return
			}
		}
	}()
}

func (f *Feed) drop(conn *websocket.Conn) {
	f.mux.Lock()
	if _, ok := f.clients[conn]; ok {
		delete(f.clients, conn)
		_ = conn.Close()
	}
	count := len(f.clients)
	f.mux.Unlock()
	counters.ObserveFeedConnections(count)
}

func (f *Feed) broadcast(event *internal.EventMessage) {
	f.mux.Lock()
	conns := make([]*websocket.Conn, 0, len(f.clients))
	for conn := range f.clients {
		conns = append(conns, conn)
	}
	f.mux.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(event); err != nil {
			if f.logger != nil {
				f.logger.Warn(fmt.Sprintf("feed: dropping client: %s", err))
			}
			f.drop(conn)
		}
	}
}

func (f *Feed) OnCheckIn(event *internal.EventMessage)  { f.broadcast(event) }
func (f *Feed) OnCheckOut(event *internal.EventMessage) { f.broadcast(event) }
func (f *Feed) OnPayment(event *internal.EventMessage)  { f.broadcast(event) }
func (f *Feed) OnTopUp(event *internal.EventMessage)    { f.broadcast(event) }
