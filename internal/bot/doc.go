// Package bot — «склейка» вокруг onebot, bottle и quota, реализующая
// чат-бота «漂流瓶» (drift bottle). Бот:
//   - слушает сообщения OneBot и разбирает команды
//     (捡漂流瓶/捡瓶, 投漂流瓶/投瓶, 我的漂流瓶, 漂流瓶管理 ...);
//   - ведёт дневные лимиты (捡/投) на пользователя (JSON-файл, ленивый
//     сброс при смене даты);
//   - дергает удалённый bottle-API и собирает ответ в цепочку
//     сегментов (текст + картинка);
//   - отдаёт /healthz и /metrics на служебном порту.
//
// Жизненный цикл:
//   - Создать бота через New(cfg, log).
//   - Запустить Start() и остановить Stop(). Stop сначала закрывает
//     websocket, затем финально сбрасывает квоты на диск.
//
// Пример:
//
//	b, err := bot.New(cfg, log)
//	if err != nil { ... }
//	if err := b.Start(); err != nil { ... }
//	defer b.Stop()
//
// Лимиты:
//   - дневные капы задаются конфигом (pick 10, throw 5 по умолчанию);
//     админ-группа (漂流瓶管理) капы обходит и умеет 查询/重置/全局统计
//     по любому QQ.
package bot
