// Package browser реализует stateful-стратегию браузерных сессий
// поверх внешнего драйвера с JSON-HTTP API: одна сессия на run,
// browser_* шаги выполняются как команды внутри сессии.
package browser
