package onebot

import "fmt"

// ========================= high-level actions =========================

type sendGroupMsgParams struct {
	GroupID int64   `json:"group_id"`
	Message Message `json:"message"`
}

type sendPrivateMsgParams struct {
	UserID  int64   `json:"user_id"`
	Message Message `json:"message"`
}

// SendGroupMsg отправляет цепочку сегментов в группу (fire-and-forget).
func (c *Client) SendGroupMsg(groupID int64, msg Message) error {
	return c.SendAction("send_group_msg", sendGroupMsgParams{GroupID: groupID, Message: msg}, nil)
}

// SendPrivateMsg отправляет цепочку сегментов в личку (fire-and-forget).
func (c *Client) SendPrivateMsg(userID int64, msg Message) error {
	return c.SendAction("send_private_msg", sendPrivateMsgParams{UserID: userID, Message: msg}, nil)
}

// Reply отвечает туда, откуда пришло событие: в группу или в личку.
func (c *Client) Reply(ev *Event, msg Message) error {
	switch ev.MessageType {
	case "group":
		return c.SendGroupMsg(ev.GroupID, msg)
	case "private":
		return c.SendPrivateMsg(ev.UserID, msg)
	default:
		return fmt.Errorf("cannot reply to %q event", ev.MessageType)
	}
}
