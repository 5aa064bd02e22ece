package onebot

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ========================= low-level =========================

func (c *Client) nextSeq() uint64 {
	return atomic.AddUint64(&c.seq, 1)
}

// dial с авторизацией, pong-handler'ом, дедлайнами и запуском пингов
func (c *Client) dialAndSetup() (*websocket.Conn, error) {
	var hdr http.Header
	if c.token != "" {
		hdr = http.Header{"Authorization": []string{"Bearer " + c.token}}
	}
	conn, _, err := websocket.DefaultDialer.Dial(c.url, hdr)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(16 << 20)

	// OneBot-сервер шлёт heartbeat meta-события, плюс держим свой ws-ping.
	// Любое чтение (pong или сообщение) продлевает дедлайн в readLoop.
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	c.startPing(conn) // ping каждые 15s

	return conn, nil
}

// безопасно закрыть текущее соединение
func (c *Client) closeConn() {
	c.stopPing()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
			time.Now().Add(500*time.Millisecond))
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) startPing(conn *websocket.Conn) {
	c.stopPing() // на всякий — останавливаем предыдущую
	c.pingStop = make(chan struct{})

	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.wmu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
				c.wmu.Unlock()
			case <-c.pingStop:
				return
			}
		}
	}()
}

func (c *Client) stopPing() {
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}
