package statusservice

import (
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// WsConn is interface for websocket handling in status service
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

// WSConnKeeper tracks subscriber connections by bot id
type WSConnKeeper struct {
	botConnections map[string]map[WsConn]struct{}
	connectionBot  map[WsConn]string
	lock           *sync.Mutex
	timeOut        time.Duration
}

// NewWSConnKeeper creates manager
func NewWSConnKeeper() *WSConnKeeper {
	res := &WSConnKeeper{}
	res.botConnections = make(map[string]map[WsConn]struct{})
	res.connectionBot = make(map[WsConn]string)
	res.lock = &sync.Mutex{}
	res.timeOut = time.Minute * 30 // drop idle subscribers after the limit
	return res
}

// HandleConnection loops while the connection is active. Each text message
// resubscribes the connection to the bot id it carries
func (kp *WSConnKeeper) HandleConnection(conn WsConn) error {
	defer kp.deleteConnection(conn)
	defer conn.Close()
	readCh := make(chan string)
	go func() {
		defer close(readCh)
		defer goapp.Log.Debug().Msg("read routine ended")
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				goapp.Log.Error().Err(err).Send()
				return
			}
			msg := strings.TrimSpace(string(message))
			goapp.Log.Debug().Str("msg", goapp.Sanitize(msg)).Msg("got msg")
			if msg != "" {
				readCh <- msg
			} else {
				time.Sleep(20 * time.Millisecond)
			}
		}
	}()

	ta := time.After(kp.timeOut)
loop:
	for {
		select {
		case <-ta:
			goapp.Log.Debug().Msg("conn timeouted")
			break loop
		case msg, ok := <-readCh:
			if !ok {
				break loop
			}
			kp.saveConnection(conn, msg)
			ta = time.After(kp.timeOut)
		}
	}
	goapp.Log.Info().Msg("handleConnection finish")
	return nil
}

func (kp *WSConnKeeper) deleteConnection(conn WsConn) {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	kp.deleteConnectionNoSync(conn)
}

func (kp *WSConnKeeper) deleteConnectionNoSync(conn WsConn) {
	id, found := kp.connectionBot[conn]
	if found {
		conns, found := kp.botConnections[id]
		if found {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(kp.botConnections, id)
			}
		}
	}
	delete(kp.connectionBot, conn)
	goapp.Log.Debug().Int("active", len(kp.connectionBot)).Msg("dropped connection")
}

func (kp *WSConnKeeper) saveConnection(conn WsConn, id string) {
	goapp.Log.Info().Str("ID", id).Msg("saveConnection")
	kp.lock.Lock()
	defer kp.lock.Unlock()
	kp.deleteConnectionNoSync(conn)
	kp.connectionBot[conn] = id
	conns, found := kp.botConnections[id]
	if !found {
		conns = map[WsConn]struct{}{}
		kp.botConnections[id] = conns
	}
	conns[conn] = struct{}{}
	goapp.Log.Info().Int("active", len(kp.connectionBot)).Msg("saveConnection finish")
}

// GetConnections returns saved connections by provided bot id
func (kp *WSConnKeeper) GetConnections(id string) ([]WsConn, bool) {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	cm, found := kp.botConnections[id]
	if found {
		res := []WsConn{}
		for c := range cm {
			res = append(res, c)
		}
		return res, true
	}
	return nil, false
}
