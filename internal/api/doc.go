// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (репозитории, trigger, registry)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - register_handler.go — старт workflow регистрации
//   - verify_handler.go   — подтверждение email по ссылке из письма
//   - run_handler.go      — чтение runs, шагов и клиентов
//
// Старт регистрации — fire-and-forget: клиент получает id run сразу,
// выполнение шагов происходит в engine-процессе.
package api
