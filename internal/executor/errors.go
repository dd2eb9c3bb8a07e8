package executor

import (
	"errors"
	"fmt"

	"github.com/shaiso/Conduit/internal/strategy"
)

// Ошибки диспетчеризации шагов.
var (
	// ErrSessionRequired — сессионное действие без активной сессии.
	ErrSessionRequired = errors.New("browser action called without active session")

	// ErrConnectionRequired — stateless-действие без connection_source.
	ErrConnectionRequired = errors.New("step requires a connection_source for a stateless action")
)

// DispatchError — действие не поддерживается разрешённой стратегией.
//
// Всегда называет и действие, и ключ провайдера — никогда не
// проявляется как отсутствующий метод.
type DispatchError struct {
	Action      string
	ProviderKey string
}

// Error реализует интерфейс error.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("action %q is not implemented by the %q strategy", e.Action, e.ProviderKey)
}

// Unwrap возвращает strategy.ErrNotSupported.
func (e *DispatchError) Unwrap() error {
	return strategy.ErrNotSupported
}

// Kind возвращает имя класса ошибки для карты результатов.
func (e *DispatchError) Kind() string {
	return "DispatchError"
}

// ResolutionError — не удалось разрешить источник подключения
// или подобрать стратегию для него.
type ResolutionError struct {
	Source string
	Err    error
}

// Error реализует интерфейс error.
func (e *ResolutionError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("resolve connection %q: %v", e.Source, e.Err)
	}
	return e.Err.Error()
}

// Unwrap возвращает базовую ошибку.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Kind возвращает имя класса ошибки для карты результатов.
func (e *ResolutionError) Kind() string {
	return "ResolutionError"
}
