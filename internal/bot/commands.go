package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/EgorLis/Bottlebot/internal/bottle"
	"github.com/EgorLis/Bottlebot/internal/metrics"
	"github.com/EgorLis/Bottlebot/internal/onebot"
	"github.com/EgorLis/Bottlebot/internal/quota"
)

// handleEvent — точка входа для входящих событий OneBot. Обработка
// уходит в отдельную горутину, чтобы вызов API не тормозил read loop;
// квоты при этом защищены мьютексом стора.
func (b *BottleBot) handleEvent(ev *onebot.Event) {
	if ev.PostType != "message" {
		return
	}
	go func() {
		msg := b.route(context.Background(), ev)
		if msg == nil {
			return
		}
		if err := b.ob.Reply(ev, msg); err != nil {
			b.log.Warn("reply failed", zap.Int64("user", ev.UserID), zap.Error(err))
		}
	}()
}

// route разбирает текст команды и возвращает ответ.
// nil — сообщение не для нас (в чате живут и другие боты).
func (b *BottleBot) route(ctx context.Context, ev *onebot.Event) onebot.Message {
	text := strings.TrimSpace(ev.PlainText())
	if text == "" {
		return nil
	}
	fields := splitArgs(text)
	if len(fields) == 0 {
		return nil
	}
	cmd := fields[0]

	var name string
	switch cmd {
	case "捡漂流瓶", "捡瓶":
		name = "pick"
	case "投漂流瓶", "投瓶":
		name = "throw"
	case "我的漂流瓶", "漂流瓶统计":
		name = "stats"
	case "漂流瓶管理":
		name = "admin"
	default:
		return nil
	}

	if !b.limiter.Allow() {
		metrics.CommandsDropped.Inc()
		b.log.Debug("command dropped by flood limiter", zap.Int64("user", ev.UserID))
		return nil
	}
	metrics.CommandsTotal.WithLabelValues(name).Inc()

	userID := strconv.FormatInt(ev.UserID, 10)

	switch name {
	case "pick":
		return b.handlePick(ctx, userID)
	case "throw":
		// текст бутылки — всё после имени команды, без разбиения по кавычкам
		content := strings.TrimSpace(strings.TrimPrefix(text, cmd))
		return b.handleThrow(ctx, userID, content, ev.FirstImageURL())
	case "stats":
		return b.handleMyStats(userID)
	default:
		return b.handleAdmin(ev, fields[1:])
	}
}

// handlePick — команда «捡漂流瓶».
func (b *BottleBot) handlePick(ctx context.Context, userID string) onebot.Message {
	limit := b.cfg.Bottle.DailyPickLimit

	rec, err := b.quota.GetOrInit(userID)
	if err != nil {
		return b.failReply("捡瓶", err, userID)
	}
	if rec.Pick >= limit {
		return plain(fmt.Sprintf("今日捡瓶次数已用尽！\n每日上限：%d次\n明日0点自动重置", limit))
	}

	btl, err := b.api.Call(ctx, bottle.ActionPick, userID, "", "")
	if err != nil {
		return plain("❌ 捡瓶失败：" + b.userError(err))
	}

	rec, err = b.quota.Increment(userID, quota.KindPick)
	if err != nil {
		return b.failReply("捡瓶", err, userID)
	}
	remaining := limit - rec.Pick

	msg := plain(fmt.Sprintf("✅ 捡到漂流瓶啦！\n%s\n\n📊 今日剩余：%d次", btl.Text, remaining))
	if btl.ImageURL != "" {
		msg = append(msg, onebot.Image(btl.ImageURL))
	}
	return msg
}

// handleThrow — команда «投漂流瓶 <текст>» (можно с картинкой).
func (b *BottleBot) handleThrow(ctx context.Context, userID, content, imageURL string) onebot.Message {
	limit := b.cfg.Bottle.DailyThrowLimit

	rec, err := b.quota.GetOrInit(userID)
	if err != nil {
		return b.failReply("投瓶", err, userID)
	}
	if rec.Throw >= limit {
		return plain(fmt.Sprintf("今日投瓶次数已用尽！\n每日上限：%d次\n明日0点自动重置", limit))
	}

	// нужен текст или картинка — иначе и звонить в API незачем
	if content == "" && imageURL == "" {
		return plain("❌ 投放失败：需携带文字内容或图片！\n示例：\n投漂流瓶 今天天气真好～\n（发送时可附带图片）")
	}

	btl, err := b.api.Call(ctx, bottle.ActionThrow, userID, content, imageURL)
	if err != nil {
		return plain("❌ 投瓶失败：" + b.userError(err))
	}

	rec, err = b.quota.Increment(userID, quota.KindThrow)
	if err != nil {
		return b.failReply("投瓶", err, userID)
	}
	remaining := limit - rec.Throw

	msg := plain(fmt.Sprintf("✅ 漂流瓶投放成功！\n%s\n\n📊 今日剩余：%d次", btl.Text, remaining))
	if imageURL != "" {
		msg = append(msg, onebot.Text("\n你投放的图片："), onebot.Image(imageURL))
	}
	return msg
}

// handleMyStats — команда «我的漂流瓶».
func (b *BottleBot) handleMyStats(userID string) onebot.Message {
	rec, err := b.quota.GetOrInit(userID)
	if err != nil {
		return b.failReply("统计", err, userID)
	}
	return plain(fmt.Sprintf(
		"📊 你的今日漂流瓶统计\n"+
			"✅ 已捡瓶：%d/%d次（剩余%d）\n"+
			"✅ 已投瓶：%d/%d次（剩余%d）\n"+
			"📌 次数每日0点自动重置～",
		rec.Pick, b.cfg.Bottle.DailyPickLimit, b.cfg.Bottle.DailyPickLimit-rec.Pick,
		rec.Throw, b.cfg.Bottle.DailyThrowLimit, b.cfg.Bottle.DailyThrowLimit-rec.Throw))
}

// handleAdmin — группа «漂流瓶管理 查询|重置|全局统计». Лимиты не
// проверяются; работает по любому id.
func (b *BottleBot) handleAdmin(ev *onebot.Event, args []string) onebot.Message {
	if !b.isAdmin(ev) {
		// молча игнорируем, как это делал бы пермишен-фильтр хоста
		b.log.Debug("admin command from non-admin", zap.Int64("user", ev.UserID))
		return nil
	}
	if len(args) == 0 {
		return plain("用法：漂流瓶管理 查询 <QQ> | 重置 <QQ> | 全局统计")
	}

	switch args[0] {
	case "查询":
		if len(args) < 2 {
			return plain("用法：漂流瓶管理 查询 <QQ>")
		}
		target := strings.TrimSpace(args[1])
		rec, _ := b.quota.Peek(target)
		return plain(fmt.Sprintf(
			"🔍 【管理员查询】QQ%s今日统计\n"+
				"✅ 已捡瓶：%d/%d次（剩余%d）\n"+
				"✅ 已投瓶：%d/%d次（剩余%d）",
			target,
			rec.Pick, b.cfg.Bottle.DailyPickLimit, b.cfg.Bottle.DailyPickLimit-rec.Pick,
			rec.Throw, b.cfg.Bottle.DailyThrowLimit, b.cfg.Bottle.DailyThrowLimit-rec.Throw))

	case "重置":
		if len(args) < 2 {
			return plain("用法：漂流瓶管理 重置 <QQ>")
		}
		target := strings.TrimSpace(args[1])
		ok, err := b.quota.Reset(target)
		if err != nil {
			return b.failReply("重置", err, target)
		}
		if !ok {
			return plain(fmt.Sprintf("ℹ️ QQ%s今日未操作，无需重置～", target))
		}
		return plain(fmt.Sprintf("✅ 已重置QQ%s的今日捡/投瓶次数！", target))

	case "全局统计":
		users, picks, throws := b.quota.Totals()
		return plain(fmt.Sprintf(
			"📊 【管理员全局统计】今日数据\n"+
				"👥 参与用户：%d人\n"+
				"✅ 总捡瓶：%d次\n"+
				"✅ 总投瓶：%d次\n"+
				"📌 上限：捡%d次/人，投%d次/人",
			users, picks, throws,
			b.cfg.Bottle.DailyPickLimit, b.cfg.Bottle.DailyThrowLimit))

	default:
		return plain("用法：漂流瓶管理 查询 <QQ> | 重置 <QQ> | 全局统计")
	}
}

// isAdmin: явный список в конфиге либо владелец/админ группы.
func (b *BottleBot) isAdmin(ev *onebot.Event) bool {
	for _, id := range b.cfg.Bot.Admins {
		if id == ev.UserID {
			return true
		}
	}
	return ev.Sender.Role == "owner" || ev.Sender.Role == "admin"
}

// userError переводит структурную ошибку API в текст для чата.
func (b *BottleBot) userError(err error) string {
	var apiErr *bottle.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case bottle.ErrTimeout:
			return fmt.Sprintf("请求超时（%d秒）：API响应过慢", int(b.apiTimeout.Seconds()))
		case bottle.ErrConnect:
			return "连接失败：API服务器可能离线"
		case bottle.ErrHTTP:
			return fmt.Sprintf("请求错误：HTTP %d", apiErr.Status)
		case bottle.ErrRemote:
			return "API错误：" + apiErr.Message
		default:
			return "调用异常：" + truncate(apiErr.Message, 30)
		}
	}
	return "调用异常：" + truncate(err.Error(), 30)
}

// failReply — граница обработчика: любая внутренняя ошибка логируется
// и превращается в короткий ответ, наружу ничего не утекает.
func (b *BottleBot) failReply(op string, err error, userID string) onebot.Message {
	b.log.Error("command failed", zap.String("op", op), zap.String("user", userID), zap.Error(err))
	return plain("❌ 操作失败：" + truncate(err.Error(), 30))
}

func plain(s string) onebot.Message {
	return onebot.Message{onebot.Text(s)}
}

// truncate режет строку по рунам (в ответах много CJK).
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// сплит с поддержкой кавычек: 重置 "123456"
func splitArgs(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case unicode.IsSpace(r) && !inQuote:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
