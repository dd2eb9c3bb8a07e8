package engine

// StepRecord — результат завершённого шага в контексте run.
type StepRecord struct {
	// Result — сырой результат шага.
	Result any `json:"result"`

	// Outputs — значения, извлечённые из результата по outputs-запросам шага.
	Outputs map[string]any `json:"outputs"`
}

// RunContext — изменяемое состояние одного run.
//
// Создаётся при старте run и уничтожается по его завершении.
// Пополняется оркестратором по мере завершения поколений; конкурентных
// писателей нет — запись происходит только между поколениями, после
// возврата задач шагов.
type RunContext struct {
	// ScriptInput — входные данные, переданные при запуске скрипта.
	ScriptInput map[string]any

	// SessionVariables — переменные интерактивной сессии,
	// доступные шаблонам на верхнем уровне.
	SessionVariables map[string]any

	// steps — записи завершённых шагов по ID.
	steps map[string]StepRecord
}

// NewRunContext создаёт контекст run.
func NewRunContext(scriptInput, sessionVariables map[string]any) *RunContext {
	if scriptInput == nil {
		scriptInput = make(map[string]any)
	}
	return &RunContext{
		ScriptInput:      scriptInput,
		SessionVariables: sessionVariables,
		steps:            make(map[string]StepRecord),
	}
}

// SetStep записывает результат завершённого шага.
func (rc *RunContext) SetStep(stepID string, result any, outputs map[string]any) {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	rc.steps[stepID] = StepRecord{Result: result, Outputs: outputs}
}

// Step возвращает запись завершённого шага.
func (rc *RunContext) Step(stepID string) (StepRecord, bool) {
	rec, ok := rc.steps[stepID]
	return rec, ok
}

// TemplateContext собирает базовый контекст рендеринга:
// {home, steps, script_input} плюс переменные сессии на верхнем уровне.
func (rc *RunContext) TemplateContext(home string) map[string]any {
	steps := make(map[string]any, len(rc.steps))
	for id, rec := range rc.steps {
		steps[id] = map[string]any{
			"result":  rec.Result,
			"outputs": rec.Outputs,
		}
	}

	ctx := map[string]any{
		"home":         home,
		"steps":        steps,
		"script_input": rc.ScriptInput,
	}
	for k, v := range rc.SessionVariables {
		ctx[k] = v
	}
	return ctx
}
