package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		c.closed.Store(true)
		c.closeConn()
		if c.OnDisconnected != nil {
			c.OnDisconnected()
		}
	}()

	// закрыть по отмене контекста
	go func() {
		<-ctx.Done()
		c.closeConn()
	}()

	backoff := time.Second

	for {
		if c.conn == nil {
			// имитируем ошибку сети, чтобы провалиться в ветку реконнекта
			if c.OnError != nil && !c.closed.Load() {
				c.OnError(fmt.Errorf("connection is nil"))
			}
		} else {
			_, data, err := c.conn.ReadMessage()
			if err == nil {
				_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				c.dispatch(data)
				backoff = time.Second
				continue
			}

			// ошибка чтения
			if c.OnError != nil && !c.closed.Load() {
				c.OnError(err)
			}
			if c.closed.Load() {
				return
			}
		}

		// закрываем и фейлим ожидающие
		c.closeConn()
		c.failPendingCallbacks(fmt.Errorf("connection lost"))

		// реконнект с backoff
		for !c.closed.Load() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
				conn, derr := c.dialAndSetup()
				if derr != nil {
					if c.OnError != nil {
						c.OnError(fmt.Errorf("reconnect failed (wait %v): %w", backoff, derr))
					}
					if backoff < 30*time.Second {
						backoff *= 2
						if backoff > 30*time.Second {
							backoff = 30 * time.Second
						}
					}
					continue
				}
				c.conn = conn
				c.log.Info("onebot reconnected", zap.String("url", c.url))
				if c.OnConnected != nil {
					c.OnConnected()
				}
				backoff = time.Second
				goto CONTINUE_READ
			}
		}
		return
	CONTINUE_READ:
		continue
	}
}

// dispatch — один входящий фрейм: либо ответ на action (есть echo),
// либо событие.
func (c *Client) dispatch(data []byte) {
	var probe struct {
		Echo     string `json:"echo"`
		PostType string `json:"post_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		if c.OnError != nil {
			c.OnError(err)
		}
		return
	}

	if probe.Echo != "" {
		var resp ActionResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			if c.OnError != nil {
				c.OnError(err)
			}
			return
		}
		c.mu.Lock()
		cb, ok := c.cbs[resp.Echo]
		if ok {
			delete(c.cbs, resp.Echo)
		}
		c.mu.Unlock()
		if ok && cb != nil {
			cb(&resp)
		}
		return
	}

	// heartbeat/lifecycle только продлевают активность
	if probe.PostType == "meta_event" {
		return
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		if c.OnError != nil {
			c.OnError(err)
		}
		return
	}
	if c.OnEvent != nil {
		c.OnEvent(&ev)
	}
}

// пометить все ожидающие callbacks ошибкой при реконнекте/закрытии
func (c *Client) failPendingCallbacks(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cbs) == 0 {
		return
	}
	for k, cb := range c.cbs {
		if cb != nil {
			cb(&ActionResponse{Status: "failed", RetCode: -1, Wording: err.Error()})
		}
		delete(c.cbs, k)
	}
}
