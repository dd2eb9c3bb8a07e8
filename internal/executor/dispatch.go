package executor

import (
	"context"
	"strings"

	"github.com/shaiso/Conduit/internal/domain"
	"github.com/shaiso/Conduit/internal/engine"
	"github.com/shaiso/Conduit/internal/strategy"
)

// dispatch сопоставляет действие со способностью стратегии.
// Соответствие закрытое: неизвестные действия отсекаются ещё валидацией,
// а отсутствие способности у стратегии — это DispatchError с именем
// действия и ключом провайдера, никогда не паника по отсутствию метода.
func (e *StepExecutor) dispatch(ctx context.Context, kind string, step *domain.Step, strat strategy.Strategy, conn *domain.Connection, secrets domain.Secrets, rc *engine.RunContext) (any, error) {
	switch kind {
	case domain.ActionRunDeclarative:
		da, ok := strat.(strategy.DeclarativeActioner)
		if !ok {
			return nil, &DispatchError{Action: kind, ProviderKey: strat.Key()}
		}
		return da.RunDeclarativeAction(ctx, conn, secrets, step.Run, rc.ScriptInput)

	case domain.ActionBrowsePath:
		return strat.BrowsePath(ctx, pathParts(step.Run["path"]), conn, secrets)

	case domain.ActionReadContent:
		return strat.GetContent(ctx, pathParts(step.Run["path"]), conn, secrets)

	case domain.ActionRunPythonScript:
		sr, ok := strat.(strategy.ScriptRunner)
		if !ok {
			return nil, &DispatchError{Action: kind, ProviderKey: strat.Key()}
		}
		// Действия без секретов: скрипту передаются только
		// подключение, параметры и вход сценария.
		return sr.RunPythonScript(ctx, conn, step.Run, rc.ScriptInput)

	case domain.ActionWriteFiles:
		fw, ok := strat.(strategy.FileWriter)
		if !ok {
			return nil, &DispatchError{Action: kind, ProviderKey: strat.Key()}
		}
		return fw.WriteFiles(ctx, conn, step.Run, rc.ScriptInput)

	case domain.ActionAggregateContent:
		ca, ok := strat.(strategy.ContentAggregator)
		if !ok {
			return nil, &DispatchError{Action: kind, ProviderKey: strat.Key()}
		}
		return ca.AggregateContent(ctx, conn, step.Run, rc.ScriptInput)

	default:
		return nil, &DispatchError{Action: kind, ProviderKey: strat.Key()}
	}
}

// pathParts нормализует поле path действия: список сегментов
// передаётся как есть, строка режется по "/".
func pathParts(v any) []string {
	switch p := v.(type) {
	case []string:
		return p
	case []any:
		parts := make([]string, 0, len(p))
		for _, seg := range p {
			if s, ok := seg.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	case string:
		var parts []string
		for _, seg := range strings.Split(p, "/") {
			if seg != "" {
				parts = append(parts, seg)
			}
		}
		return parts
	default:
		return nil
	}
}
