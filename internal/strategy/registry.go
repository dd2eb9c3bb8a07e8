package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр стратегий по ключу провайдера.
//
// Строится один раз при конструировании сервиса; поиск выполняется
// на каждый шаг по ключу провайдера разрешённого подключения.
// Потокобезопасен.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register регистрирует стратегию.
//
// Возвращает ошибку при пустом или повторяющемся ключе — набор способностей
// каждой стратегии фиксируется на этапе конструирования, а не в рантайме.
func (r *Registry) Register(s Strategy) error {
	key := s.Key()
	if key == "" {
		return ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	r.strategies[key] = s
	return nil
}

// MustRegister регистрирует стратегию и паникует при ошибке.
// Используется при статической сборке реестра в конструкторе сервиса.
func (r *Registry) MustRegister(s Strategy) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Lookup возвращает стратегию по ключу провайдера.
func (r *Registry) Lookup(providerKey string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.strategies[providerKey]
	if !exists {
		return nil, &NotRegisteredError{ProviderKey: providerKey}
	}
	return s, nil
}

// Has проверяет, зарегистрирована ли стратегия.
func (r *Registry) Has(providerKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.strategies[providerKey]
	return exists
}

// Keys возвращает отсортированный список зарегистрированных ключей.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count возвращает количество зарегистрированных стратегий.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}

// Capabilities возвращает отсортированный список способностей стратегии.
// Используется при регистрации для логирования и в сообщениях об ошибках.
func Capabilities(s Strategy) []string {
	caps := []string{"test_connection", "get_client", "browse_path", "get_content"}

	if _, ok := s.(DeclarativeActioner); ok {
		caps = append(caps, "run_declarative_action")
	}
	if _, ok := s.(QueryExecutor); ok {
		caps = append(caps, "run_sql_query")
	}
	if _, ok := s.(ScriptRunner); ok {
		caps = append(caps, "run_python_script")
	}
	if _, ok := s.(FileWriter); ok {
		caps = append(caps, "write_files")
	}
	if _, ok := s.(ContentAggregator); ok {
		caps = append(caps, "aggregate_content")
	}
	if _, ok := s.(SessionProvider); ok {
		caps = append(caps, "start_session")
	}

	sort.Strings(caps)
	return caps
}
