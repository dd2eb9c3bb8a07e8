package engine

import "fmt"

// Extract применяет query извлечения к сырому результату шага.
//
// Query — путь вида "items[0].id" или "rows['Имя']". Ошибки извлечения
// мягкие: оркестратор логирует их и пропускает output, run не прерывается.
func Extract(query string, data any) (any, error) {
	value, err := lookupPath(data, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %v", ErrExtraction, query, err)
	}
	return value, nil
}
