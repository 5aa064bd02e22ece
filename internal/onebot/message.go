package onebot

import (
	"encoding/json"
	"strings"
)

// Segment — один элемент цепочки сообщения OneBot v11
// (text, image, at, face и т.п.).
type Segment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// Text строит текстовый сегмент.
func Text(s string) Segment {
	return Segment{Type: "text", Data: map[string]string{"text": s}}
}

// Image строит сегмент-картинку по URL.
func Image(url string) Segment {
	return Segment{Type: "image", Data: map[string]string{"file": url}}
}

// Message — цепочка сегментов.
type Message []Segment

// UnmarshalJSON принимает оба формата OneBot: массив сегментов и
// строку (CQ-код). Строку заворачиваем как один text-сегмент,
// CQ-коды не разбираем.
func (m *Message) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = Message{Text(s)}
		return nil
	}
	var segs []Segment
	if err := json.Unmarshal(b, &segs); err != nil {
		return err
	}
	*m = Message(segs)
	return nil
}

// Sender — отправитель сообщения.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Role     string `json:"role,omitempty"` // owner|admin|member (только в группах)
}

// Event — входящее событие OneBot (message / meta_event / notice...).
type Event struct {
	Time          int64   `json:"time"`
	SelfID        int64   `json:"self_id"`
	PostType      string  `json:"post_type"`
	MessageType   string  `json:"message_type,omitempty"` // group|private
	SubType       string  `json:"sub_type,omitempty"`
	MessageID     int64   `json:"message_id,omitempty"`
	GroupID       int64   `json:"group_id,omitempty"`
	UserID        int64   `json:"user_id,omitempty"`
	RawMessage    string  `json:"raw_message,omitempty"`
	Message       Message `json:"message,omitempty"`
	Sender        Sender  `json:"sender,omitempty"`
	MetaEventType string  `json:"meta_event_type,omitempty"`
}

// PlainText склеивает все text-сегменты события.
func (e *Event) PlainText() string {
	var sb strings.Builder
	for _, seg := range e.Message {
		if seg.Type == "text" {
			sb.WriteString(seg.Data["text"])
		}
	}
	return sb.String()
}

// FirstImageURL возвращает первую картинку из сообщения.
// Не-HTTP ссылки (file://, base64) отбрасываем — их не принимает API.
func (e *Event) FirstImageURL() string {
	for _, seg := range e.Message {
		if seg.Type != "image" {
			continue
		}
		u := seg.Data["url"]
		if u == "" {
			u = seg.Data["file"]
		}
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			return u
		}
	}
	return ""
}
