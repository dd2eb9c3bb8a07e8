// Package cli содержит команды conduit поверх cobra.
//
// Команды:
//   - run        — выполнить workflow-скрипт
//   - connection — проверка подключений
//   - strategies — список стратегий и их способностей
//   - serve      — HTTP API сервер
//   - schedule   — запуск скриптов по cron-расписанию
//
// Все команды работают с движком in-process, без промежуточного демона.
package cli
