package engine

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Conduit/internal/domain"
)

// exprPattern находит шаблонные выражения для текстовой интерполяции.
var exprPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Renderer разрешает шаблонные выражения в параметрах шага перед выполнением.
//
// Контекст рендеринга: {home, steps, script_input, переменные сессии},
// объединённый с сырыми полями run-блока самого шага — поэтому соседние
// поля могут ссылаться друг на друга.
//
// Правило рендеринга строкового листа:
//   - строка, целиком состоящая из одного выражения ("{{ x }}"),
//     вычисляется нативно — результат сохраняет исходный тип;
//   - при сбое нативного вычисления — откат к текстовой интерполяции;
//   - строка со встроенными маркерами рендерится как текст (всегда строка);
//   - строка без маркеров возвращается без изменений.
//
// Нестроковые листья проходят без изменений.
type Renderer struct {
	home string
}

// NewRenderer создаёт Renderer с корневой директорией home
// (доступна шаблонам как {{ home }}).
func NewRenderer(home string) *Renderer {
	return &Renderer{home: home}
}

// RenderStep рендерит все шаблонные выражения шага и повторно валидирует
// действие против его схемы. Возвращает новый шаг; исходный не изменяется.
func (r *Renderer) RenderStep(step *domain.Step, rc *RunContext) (*domain.Step, error) {
	ctx := rc.TemplateContext(r.home)
	for k, v := range step.Run {
		ctx[k] = v
	}

	rendered := &domain.Step{
		ID:        step.ID,
		Name:      step.Name,
		DependsOn: step.DependsOn,
	}

	cs, err := r.RenderValue(step.ConnectionSource, ctx)
	if err != nil {
		return nil, &RenderError{StepName: step.Name, Err: err}
	}
	rendered.ConnectionSource = coerceString(cs)

	run, err := r.RenderValue(map[string]any(step.Run), ctx)
	if err != nil {
		return nil, &RenderError{StepName: step.Name, Err: err}
	}
	runMap, ok := run.(map[string]any)
	if !ok {
		return nil, &RenderError{StepName: step.Name,
			Err: fmt.Errorf("run block rendered to %T, expected object", run)}
	}
	rendered.Run = domain.Action(runMap)

	if len(step.Outputs) > 0 {
		rendered.Outputs = make(map[string]string, len(step.Outputs))
		for name, query := range step.Outputs {
			q, err := r.RenderValue(query, ctx)
			if err != nil {
				return nil, &RenderError{StepName: step.Name, Err: err}
			}
			rendered.Outputs[name] = coerceString(q)
		}
	}

	if err := validateAction(rendered.Run); err != nil {
		return nil, &RenderError{StepName: step.Name, Err: err}
	}

	return rendered, nil
}

// RenderValue рекурсивно рендерит произвольное значение.
func (r *Renderer) RenderValue(value any, ctx map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return r.renderString(v, ctx)

	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := r.RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			out[key] = rendered
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			rendered, err := r.RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil

	case map[string]string:
		out := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := r.renderString(val, ctx)
			if err != nil {
				return nil, err
			}
			out[key] = rendered
		}
		return out, nil

	default:
		// нестроковые листья проходят без изменений
		return value, nil
	}
}

// renderString применяет правило рендеринга к одной строке.
func (r *Renderer) renderString(s string, ctx map[string]any) (any, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") &&
		strings.Count(trimmed, "{{") == 1 {
		expr := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		if v, err := evalExpression(expr, ctx); err == nil {
			return v, nil
		}
		// сбой нативного вычисления — откат к интерполяции
	}

	if strings.Contains(s, "{{") {
		return r.interpolate(s, ctx)
	}

	return s, nil
}

// interpolate заменяет каждое выражение его строковым представлением.
func (r *Renderer) interpolate(s string, ctx map[string]any) (string, error) {
	var evalErr error
	out := exprPattern.ReplaceAllStringFunc(s, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])
		v, err := evalExpression(expr, ctx)
		if err != nil {
			if evalErr == nil {
				evalErr = err
			}
			return match
		}
		return Stringify(v)
	})
	if evalErr != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, evalErr)
	}
	return out, nil
}

// validateAction повторно проверяет отрендеренное действие против схемы.
func validateAction(run domain.Action) error {
	kind := run.Kind()
	if kind == "" {
		return fmt.Errorf("%w: run block has no action tag", ErrUnknownAction)
	}
	if !domain.IsKnownAction(kind) {
		return fmt.Errorf("%w: %s", ErrUnknownAction, kind)
	}
	for _, field := range domain.RequiredActionFields(kind) {
		v, ok := run[field]
		if !ok || v == nil {
			return fmt.Errorf("action %q is missing required field %q", kind, field)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return fmt.Errorf("action %q is missing required field %q", kind, field)
		}
	}
	return nil
}

// Stringify возвращает текстовое представление значения для интерполяции.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func coerceString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return Stringify(v)
}

// --- Вычисление выражений ---

// evalExpression вычисляет одно выражение: терм и цепочку фильтров.
//
//	steps.fetch.result.items[0].name
//	script_input.rows | sqlquote
//	now('utc')
//	path | rstrip('/')
func evalExpression(expr string, ctx map[string]any) (any, error) {
	segments := splitPipeline(expr)
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty expression")
	}

	value, err := evalTerm(strings.TrimSpace(segments[0]), ctx)
	if err != nil {
		return nil, err
	}

	for _, seg := range segments[1:] {
		value, err = applyFilter(strings.TrimSpace(seg), value)
		if err != nil {
			return nil, err
		}
	}

	return value, nil
}

// splitPipeline разбивает выражение по '|' вне кавычек.
func splitPipeline(expr string) []string {
	parts := make([]string, 0, 2)
	var sb strings.Builder
	var quote rune

	for _, ch := range expr {
		switch {
		case quote != 0:
			sb.WriteRune(ch)
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
			sb.WriteRune(ch)
		case ch == '|':
			parts = append(parts, sb.String())
			sb.Reset()
		default:
			sb.WriteRune(ch)
		}
	}
	parts = append(parts, sb.String())
	return parts
}

// evalTerm вычисляет головной терм выражения.
func evalTerm(term string, ctx map[string]any) (any, error) {
	if term == "" {
		return nil, fmt.Errorf("empty expression")
	}

	// литералы
	if v, ok, err := parseLiteral(term); ok {
		return v, err
	}

	// вызов функции: now(), now('utc')
	if name, args, ok := parseCall(term); ok {
		return callFunction(name, args)
	}

	// путь в контексте
	return lookupPath(ctx, term)
}

// parseLiteral распознаёт строковые, числовые и булевы литералы.
func parseLiteral(term string) (any, bool, error) {
	if len(term) >= 2 {
		if (term[0] == '\'' && term[len(term)-1] == '\'') ||
			(term[0] == '"' && term[len(term)-1] == '"') {
			return term[1 : len(term)-1], true, nil
		}
	}
	switch term {
	case "true":
		return true, true, nil
	case "false":
		return false, true, nil
	case "null", "none":
		return nil, true, nil
	}
	if f, err := strconv.ParseFloat(term, 64); err == nil {
		return f, true, nil
	}
	return nil, false, nil
}

// parseCall распознаёт вызов функции вида name(args).
func parseCall(term string) (string, []string, bool) {
	open := strings.IndexByte(term, '(')
	if open <= 0 || !strings.HasSuffix(term, ")") {
		return "", nil, false
	}
	name := term[:open]
	if strings.ContainsAny(name, ". []") {
		return "", nil, false
	}
	inner := strings.TrimSpace(term[open+1 : len(term)-1])
	if inner == "" {
		return name, nil, true
	}
	raw := strings.Split(inner, ",")
	args := make([]string, 0, len(raw))
	for _, a := range raw {
		args = append(args, strings.Trim(strings.TrimSpace(a), `'"`))
	}
	return name, args, true
}

// callFunction вычисляет встроенную функцию шаблонов.
func callFunction(name string, args []string) (any, error) {
	switch name {
	case "now":
		if len(args) > 0 && strings.EqualFold(args[0], "utc") {
			return time.Now().UTC(), nil
		}
		return time.Now(), nil
	default:
		return nil, fmt.Errorf("unknown function: %s", name)
	}
}

// applyFilter применяет один фильтр цепочки.
func applyFilter(filter string, value any) (any, error) {
	name := filter
	var args []string
	if n, a, ok := parseCall(filter); ok {
		name, args = n, a
	}

	switch name {
	case "sqlquote":
		return sqlQuote(value), nil

	case "sha256":
		sum := sha256.Sum256([]byte(Stringify(value)))
		return hex.EncodeToString(sum[:]), nil

	case "b64decode":
		decoded, err := base64.StdEncoding.DecodeString(Stringify(value))
		if err != nil {
			return nil, fmt.Errorf("b64decode: %w", err)
		}
		return string(decoded), nil

	case "rstrip":
		s := Stringify(value)
		if len(args) > 0 {
			return strings.TrimRight(s, args[0]), nil
		}
		return strings.TrimRight(s, " \t\n\r"), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
	}
}

// sqlQuote экранирует значение для подстановки в SQL.
func sqlQuote(value any) string {
	if value == nil {
		return "NULL"
	}
	return "'" + strings.ReplaceAll(Stringify(value), "'", "''") + "'"
}

// lookupPath разрешает путь вида a.b[0]['c'] относительно корня.
func lookupPath(root any, path string) (any, error) {
	segments, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	current := root
	for _, seg := range segments {
		next, err := seg.apply(current)
		if err != nil {
			return nil, fmt.Errorf("%w: %s (at %q)", ErrUndefinedVariable, path, seg)
		}
		current = next
	}
	return current, nil
}

// pathSegment — один сегмент пути: ключ или индекс.
type pathSegment struct {
	key   string
	index int
	isIdx bool
}

func (s pathSegment) String() string {
	if s.isIdx {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	return s.key
}

// apply извлекает сегмент из значения.
func (s pathSegment) apply(v any) (any, error) {
	if s.isIdx {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("not a list")
		}
		if s.index < 0 || s.index >= len(list) {
			return nil, fmt.Errorf("index out of range")
		}
		return list[s.index], nil
	}

	switch m := v.(type) {
	case map[string]any:
		val, ok := m[s.key]
		if !ok {
			return nil, fmt.Errorf("missing key")
		}
		return val, nil
	case map[string]string:
		val, ok := m[s.key]
		if !ok {
			return nil, fmt.Errorf("missing key")
		}
		return val, nil
	default:
		return nil, fmt.Errorf("not an object")
	}
}

// parsePath разбирает путь на сегменты.
func parsePath(path string) ([]pathSegment, error) {
	segments := make([]pathSegment, 0, 4)
	rest := path

	for rest != "" {
		switch {
		case rest[0] == '.':
			rest = rest[1:]

		case rest[0] == '[':
			close := strings.IndexByte(rest, ']')
			if close < 0 {
				return nil, fmt.Errorf("unterminated subscript in %q", path)
			}
			inner := strings.TrimSpace(rest[1:close])
			rest = rest[close+1:]
			if len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') {
				segments = append(segments, pathSegment{key: inner[1 : len(inner)-1]})
				continue
			}
			idx, err := strconv.Atoi(inner)
			if err != nil {
				return nil, fmt.Errorf("bad subscript %q in %q", inner, path)
			}
			segments = append(segments, pathSegment{index: idx, isIdx: true})

		default:
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			key := strings.TrimSpace(rest[:end])
			if key == "" {
				return nil, fmt.Errorf("empty segment in path %q", path)
			}
			segments = append(segments, pathSegment{key: key})
			rest = rest[end:]
		}
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return segments, nil
}
