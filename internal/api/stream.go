package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"brigade/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// runStream pushes one run's events to a websocket client.
type runStream struct {
	conn   *websocket.Conn
	events <-chan models.RunEvent
	closed chan struct{}
}

// StreamRun upgrades to a websocket, sends the current run state and then
// every run or department change until the run finishes or the client goes
// away.
func (s *Server) StreamRun(c *gin.Context) {
	id := c.Param("id")

	// subscribe first so nothing published between the read and the
	// upgrade is lost
	events, cancel := s.deps.Runs.Subscribe(id)
	defer cancel()

	run, err := s.deps.Runs.GetRun(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "run", id, "error", err)
		return
	}

	st := &runStream{conn: conn, events: events, closed: make(chan struct{})}
	go st.readPump()
	if err := st.writePump(models.RunEvent{RunID: id, Run: run, Timestamp: time.Now()}); err != nil {
		s.logger.Debug("run stream closed", "run", id, "error", err)
	}
}

// readPump drains client frames so pongs and close frames are processed.
func (st *runStream) readPump() {
	defer close(st.closed)

	st.conn.SetReadLimit(512)
	st.conn.SetReadDeadline(time.Now().Add(pongWait))
	st.conn.SetPongHandler(func(string) error {
		st.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := st.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (st *runStream) writePump(initial models.RunEvent) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		st.conn.Close()
	}()

	if err := st.write(initial); err != nil || finished(initial) {
		st.closeNormal()
		return err
	}

	for {
		select {
		case ev, ok := <-st.events:
			if !ok {
				st.closeNormal()
				return nil
			}
			if err := st.write(ev); err != nil {
				return err
			}
			if finished(ev) {
				st.closeNormal()
				return nil
			}
		case <-ticker.C:
			st.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := st.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-st.closed:
			return nil
		}
	}
}

func (st *runStream) write(ev models.RunEvent) error {
	st.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return st.conn.WriteJSON(ev)
}

func (st *runStream) closeNormal() {
	st.conn.SetWriteDeadline(time.Now().Add(writeWait))
	st.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
}

func finished(ev models.RunEvent) bool {
	if ev.Run == nil {
		return false
	}
	return ev.Run.Status == models.RunCompleted || ev.Run.Status == models.RunFailed
}
