package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/Conduit/internal/engine"
	"github.com/shaiso/Conduit/internal/orchestrator"
	"github.com/shaiso/Conduit/internal/strategy"
)

// CreateRunRequest — запрос на выполнение скрипта.
// Скрипт задаётся либо путём, либо встроенным документом.
type CreateRunRequest struct {
	ScriptPath       string          `json:"script_path,omitempty"`
	Script           json.RawMessage `json:"script,omitempty"`
	Input            map[string]any  `json:"input,omitempty"`
	SessionVariables map[string]any  `json:"session_variables,omitempty"`
}

// RunResponse — итог выполнения.
type RunResponse struct {
	RunID      string         `json:"run_id"`
	Status     string         `json:"status"`
	FailedStep string         `json:"failed_step,omitempty"`
	Results    map[string]any `json:"results"`
}

// CreateRun выполняет workflow-скрипт синхронно и возвращает
// карту результатов по именам шагов.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	var (
		outcome *orchestrator.Outcome
		err     error
	)
	switch {
	case req.ScriptPath != "":
		outcome, err = h.service.RunScript(r.Context(), req.ScriptPath, req.Input, req.SessionVariables)
	case len(req.Script) > 0:
		script, parseErr := engine.ParseScript(req.Script)
		if parseErr != nil {
			BadRequest(w, parseErr.Error())
			return
		}
		outcome, err = h.service.RunScriptModel(r.Context(), script, req.Input, req.SessionVariables)
	default:
		BadRequest(w, "either script_path or script is required")
		return
	}

	if err != nil {
		// Фатальные ошибки конфигурации — вина запроса.
		var cfgErr *orchestrator.ConfigError
		if errors.As(err, &cfgErr) {
			InvalidState(w, err.Error())
			return
		}
		var valErr *engine.ValidationError
		if errors.As(err, &valErr) {
			BadRequest(w, err.Error())
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	status := string(outcome.Run.Status)
	Success(w, RunResponse{
		RunID:      outcome.Run.ID.String(),
		Status:     status,
		FailedStep: outcome.FailedStep,
		Results:    outcome.Results,
	})
}

// TestConnectionRequest — запрос проверки подключения.
type TestConnectionRequest struct {
	Source string `json:"source"`
}

// TestConnection проверяет подключение по источнику.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req TestConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Source == "" {
		BadRequest(w, "source is required")
		return
	}

	Success(w, h.service.TestConnection(r.Context(), req.Source))
}

// StrategyInfo — описание зарегистрированной стратегии.
type StrategyInfo struct {
	Key          string   `json:"key"`
	Capabilities []string `json:"capabilities"`
}

// ListStrategies возвращает зарегистрированные стратегии
// и их способности.
func (h *Handler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	registry := h.service.Registry()

	infos := make([]StrategyInfo, 0, registry.Count())
	for _, key := range registry.Keys() {
		strat, err := registry.Lookup(key)
		if err != nil {
			continue
		}
		infos = append(infos, StrategyInfo{
			Key:          key,
			Capabilities: strategy.Capabilities(strat),
		})
	}

	List(w, infos, len(infos))
}
