// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go     — Handler с зависимостями (Service, logger)
//   - routes.go      — регистрация маршрутов
//   - middleware.go  — middleware (logging, recovery)
//   - response.go    — унифицированные JSON-ответы
//   - run_handler.go — выполнение скриптов и проверка подключений
//
// API выполняет скрипты синхронно: ответ содержит карту результатов
// по именам шагов.
package api
