package orchestrator

import (
	"errors"
	"fmt"
)

// Ошибки инициализации сессии.
var (
	// ErrSessionStepMissing — session_provider задан, но в скрипте нет
	// ни одного шага с connection_source для открытия сессии.
	ErrSessionStepMissing = errors.New("no step with a connection_source to start the session from")

	// ErrSessionUnsupported — разрешённая стратегия не умеет сессии.
	ErrSessionUnsupported = errors.New("resolved strategy does not support sessions")

	// ErrSessionProviderMismatch — первый шаг с connection_source
	// разрешился в стратегию с другим provider key, чем session_provider.
	ErrSessionProviderMismatch = errors.New("session setup step resolved to a different provider")
)

// ConfigError — фатальная ошибка конфигурации run.
// Поднимается до старта первого шага; run не начинается.
type ConfigError struct {
	Script string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("script %q: %v", e.Script, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Kind возвращает класс ошибки.
func (e *ConfigError) Kind() string { return "ConfigurationError" }

// errorKind возвращает класс ошибки шага для записи в результаты.
// Ошибки без собственного класса считаются сбоем внутри стратегии.
func errorKind(err error) string {
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return "StrategyError"
}
