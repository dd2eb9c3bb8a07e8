package strategy

import (
	"errors"
	"fmt"
)

// Ошибки стратегий.
var (
	// ErrEmptyKey — стратегия без ключа провайдера.
	ErrEmptyKey = errors.New("strategy has empty provider key")

	// ErrDuplicateKey — несколько стратегий с одним ключом.
	ErrDuplicateKey = errors.New("duplicate strategy key")

	// ErrNotRegistered — нет стратегии для ключа провайдера.
	ErrNotRegistered = errors.New("no strategy registered")

	// ErrNotSupported — стратегия не поддерживает запрошенную способность.
	ErrNotSupported = errors.New("capability not supported")
)

// NotRegisteredError — отсутствие стратегии для ключа провайдера.
type NotRegisteredError struct {
	ProviderKey string
}

// Error реализует интерфейс error.
func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("no connector strategy registered for key %q", e.ProviderKey)
}

// Unwrap возвращает ErrNotRegistered.
func (e *NotRegisteredError) Unwrap() error {
	return ErrNotRegistered
}

// Kind возвращает имя класса ошибки для карты результатов.
func (e *NotRegisteredError) Kind() string {
	return "ResolutionError"
}

// NotSupportedError — стратегия не реализует запрошенную способность.
func NotSupportedError(key, capability string) error {
	return fmt.Errorf("%w: the %q strategy does not support %q", ErrNotSupported, key, capability)
}
