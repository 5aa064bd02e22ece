// Package onebot реализует forward-websocket клиент протокола OneBot v11
// (go-cqhttp, Lagrange, NapCat и совместимые). Клиент подключается к
// ws://host:port с опциональным access token, принимает события в формате
// JSON, отправляет action'ы с echo-корреляцией ответов и автоматически
// реконнектится.
//
// События (колбэки поля структуры):
//   - OnConnecting, OnConnected, OnEvent, OnDisconnected, OnError.
//
// Безопасность и устойчивость:
//   - Запись в сокет сериализована (мьютекс + write-deadline).
//   - Keep-alive: ws ping/pong плюс read-deadline, продлеваемый любым
//     входящим фреймом. При проблемах — экспоненциальный реконнект и
//     сброс ожидающих колбэков с ошибкой.
//
// Пример:
//
//	ob := onebot.New(onebot.Config{URL: "ws://127.0.0.1:6700"}, log)
//	ob.OnEvent = func(ev *onebot.Event) { fmt.Println(ev.PlainText()) }
//	if err := ob.Connect(ctx); err != nil { log.Fatal(err) }
//	defer ob.Disconnect()
//
//	_ = ob.SendGroupMsg(12345, onebot.Message{onebot.Text("hello")})
package onebot
