package rest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shaiso/Conduit/internal/domain"
)

// placeholderPattern — плейсхолдеры шаблонов каталога:
// {{ params.x }}, {{ details.host }}, {{ secrets.api_key }}.
var placeholderPattern = regexp.MustCompile(`\{\{\s*(params|details|secrets)\.([\w.-]+)\s*\}\}`)

// substitute подставляет значения в строку шаблона действия.
// Неизвестные плейсхолдеры остаются как есть.
func substitute(s string, conn *domain.Connection, secrets domain.Secrets, params map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		namespace, key := groups[1], groups[2]

		switch namespace {
		case "params":
			if params != nil {
				if v, ok := params[key]; ok {
					return fmt.Sprint(v)
				}
			}
		case "details":
			if conn != nil {
				if v := conn.Detail(key); v != "" {
					return v
				}
			}
		case "secrets":
			if secrets != nil {
				if v, ok := secrets[strings.ToLower(key)]; ok {
					return v
				}
			}
		}
		return match
	})
}

// substituteValue рекурсивно подставляет плейсхолдеры в payload шаблона.
func substituteValue(value any, conn *domain.Connection, secrets domain.Secrets, params map[string]any) any {
	switch v := value.(type) {
	case string:
		return substitute(v, conn, secrets, params)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = substituteValue(item, conn, secrets, params)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = substituteValue(item, conn, secrets, params)
		}
		return out
	default:
		return value
	}
}
