package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config — параметры forward-websocket подключения к OneBot-серверу.
type Config struct {
	URL         string `yaml:"url"` // ws://host:port
	AccessToken string `yaml:"access_token"`
}

// ActionResponse — ответ сервера на action, скоррелированный по echo.
type ActionResponse struct {
	Status  string          `json:"status"` // ok | failed
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Echo    string          `json:"echo"`
	Msg     string          `json:"msg,omitempty"`
	Wording string          `json:"wording,omitempty"`
}

// OK — успех по меркам OneBot (status ok/async).
func (r *ActionResponse) OK() bool {
	return r.Status == "ok" || r.Status == "async"
}

type actionRequest struct {
	Action string `json:"action"`
	Params any    `json:"params,omitempty"`
	Echo   string `json:"echo,omitempty"`
}

type Client struct {
	url   string
	token string

	conn   *websocket.Conn
	seq    uint64
	mu     sync.Mutex
	cbs    map[string]func(*ActionResponse)
	closed atomic.Bool

	wmu      sync.Mutex    // сериализует запись в websocket
	pingStop chan struct{} // стоп-канал для ping-горутины

	log *zap.Logger

	// "События" (колбэки, задаются до Connect)
	OnConnecting   func()
	OnConnected    func()
	OnEvent        func(*Event)
	OnDisconnected func()
	OnError        func(error)
}

func New(cfg Config, log *zap.Logger) *Client {
	return &Client{
		url:   cfg.URL,
		token: cfg.AccessToken,
		log:   log,
		cbs:   make(map[string]func(*ActionResponse)),
	}
}

// Connect — устанавливает WebSocket и запускает readLoop.
// Контекст можно отменить для мягкого выхода из readLoop.
func (c *Client) Connect(ctx context.Context) error {
	if c.OnConnecting != nil {
		c.OnConnecting()
	}
	conn, err := c.dialAndSetup()
	if err != nil {
		return err
	}
	c.conn = conn
	c.closed.Store(false)

	if c.OnConnected != nil {
		c.OnConnected()
	}

	go c.readLoop(ctx)
	return nil
}

func (c *Client) Disconnect() {
	c.closed.Store(true)
	c.closeConn()
	if c.OnDisconnected != nil {
		c.OnDisconnected()
	}
}

func (c *Client) IsConnected() bool {
	return c.conn != nil && !c.closed.Load()
}

// SendAction — отправляет action с уникальным echo. Если cb != nil,
// он будет вызван по ответу с тем же echo (один раз).
func (c *Client) SendAction(action string, params any, cb func(*ActionResponse)) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	echo := "bb-" + strconv.FormatUint(c.nextSeq(), 10)

	if cb != nil {
		c.mu.Lock()
		c.cbs[echo] = cb
		c.mu.Unlock()
	}

	data, err := json.Marshal(actionRequest{Action: action, Params: params, Echo: echo})
	if err != nil {
		return err
	}

	// запись строго через один мьютекс + write-deadline
	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	werr := c.conn.WriteMessage(websocket.TextMessage, data)
	c.wmu.Unlock()

	if werr != nil {
		// сеть упала между подготовкой и записью — подчищаем cb
		c.mu.Lock()
		delete(c.cbs, echo)
		c.mu.Unlock()
		return werr
	}
	return nil
}

// SendActionAsync — отправка с ожиданием ответа (аналог промиса).
func (c *Client) SendActionAsync(action string, params any, timeout time.Duration) (*ActionResponse, error) {
	respCh := make(chan *ActionResponse, 1)

	err := c.SendAction(action, params, func(r *ActionResponse) {
		respCh <- r
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-respCh:
		if !r.OK() {
			return r, fmt.Errorf("action %s failed: retcode=%d %s", action, r.RetCode, r.Wording)
		}
		return r, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout waiting for %s response", action)
	}
}
