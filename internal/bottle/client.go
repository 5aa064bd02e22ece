package bottle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/EgorLis/Bottlebot/internal/metrics"
)

// DefaultAPIURL — эндпоинт API «小云鲨» (drift bottle).
const DefaultAPIURL = "http://rnrqsj.top/api/a/index.php"

const (
	// сервис отдаёт text/plain; ошибки помечены фиксированным префиксом
	errSentinel = "错误："
	// строка с картинкой внутри полезного текста: "图片URL: <url>" ("无" = нет)
	imageLinePrefix = "图片URL:"
	imageNone       = "无"
)

// Action — тип запроса к API.
type Action string

const (
	ActionPick  Action = "pick"
	ActionThrow Action = "throw"
)

// Bottle — успешный ответ API: текст бутылки и (опционально) картинка.
type Bottle struct {
	Text     string
	ImageURL string
}

// ErrKind различает причины отказа, чтобы бот показывал разные сообщения.
type ErrKind int

const (
	ErrTimeout ErrKind = iota + 1
	ErrConnect
	ErrHTTP
	ErrRemote
	ErrUnknown
)

func (k ErrKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrConnect:
		return "connect"
	case ErrHTTP:
		return "http"
	case ErrRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Error — структурный результат неудачного вызова. Вызывающие ветвятся
// по Kind через errors.As, а не по префиксам строк.
type Error struct {
	Kind    ErrKind
	Status  int // для ErrHTTP
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrTimeout:
		return "bottle api: timeout"
	case ErrConnect:
		return "bottle api: connection failed"
	case ErrHTTP:
		return fmt.Sprintf("bottle api: http %d", e.Status)
	case ErrRemote:
		return "bottle api: " + e.Message
	default:
		return "bottle api: " + e.Message
	}
}

// Client — клиент bottle-API. Один запрос на вызов, без ретраев.
type Client struct {
	http   *http.Client
	apiURL string
	key    string
	log    *zap.Logger
}

func New(apiURL, key string, timeout time.Duration, log *zap.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		apiURL: apiURL,
		key:    key,
		log:    log,
	}
}

// Call выполняет запрос pick/throw для пользователя userID.
// text/imageURL уходят в запрос только при throw и только если заданы.
func (c *Client) Call(ctx context.Context, action Action, userID, text, imageURL string) (*Bottle, error) {
	params := url.Values{}
	params.Set("id", userID)
	params.Set("key", c.key)
	params.Set("type", "text") // text-формат проще разбирать

	if action == ActionThrow {
		if text != "" {
			params.Set("character", text)
		}
		if imageURL != "" {
			params.Set("url", imageURL)
		}
	}

	started := time.Now()
	btl, err := c.do(ctx, params)
	metrics.APIRequestDuration.WithLabelValues(string(action)).Observe(time.Since(started).Seconds())

	outcome := "ok"
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			outcome = apiErr.Kind.String()
		} else {
			outcome = "unknown"
		}
		c.log.Warn("bottle api call failed",
			zap.String("action", string(action)),
			zap.String("user", userID),
			zap.Error(err))
	}
	metrics.APIRequestsTotal.WithLabelValues(string(action), outcome).Inc()
	return btl, err
}

func (c *Client) do(ctx context.Context, params url.Values) (*Bottle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Message: truncate(err.Error(), 60)}
	}
	req.Header.Set("User-Agent", "Bottlebot/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, &Error{Kind: ErrHTTP, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err)
	}

	result := strings.TrimSpace(string(body))
	if rest, ok := strings.CutPrefix(result, errSentinel); ok {
		return nil, &Error{Kind: ErrRemote, Message: strings.TrimSpace(rest)}
	}

	return &Bottle{
		Text:     result,
		ImageURL: extractImageURL(result),
	}, nil
}

// classify раскладывает сетевые ошибки по видам: таймаут, обрыв
// соединения, прочее.
func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout}
	}
	var nerr interface{ Timeout() bool }
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{Kind: ErrTimeout}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &Error{Kind: ErrConnect, Message: truncate(uerr.Err.Error(), 60)}
	}
	return &Error{Kind: ErrUnknown, Message: truncate(err.Error(), 60)}
}

// extractImageURL ищет в тексте строку "图片URL: <url>" и возвращает
// ссылку, если это не "无" и она http/https.
func extractImageURL(payload string) string {
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, imageLinePrefix) {
			continue
		}
		v := strings.TrimSpace(line[len(imageLinePrefix):])
		if v == imageNone || v == "" {
			return ""
		}
		if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
			return v
		}
		return ""
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
