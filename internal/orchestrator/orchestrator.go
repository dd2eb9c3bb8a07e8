package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conduit/internal/domain"
	"github.com/shaiso/Conduit/internal/engine"
	"github.com/shaiso/Conduit/internal/events"
	"github.com/shaiso/Conduit/internal/executor"
	"github.com/shaiso/Conduit/internal/strategy"
	"github.com/shaiso/Conduit/internal/telemetry"
)

// Orchestrator управляет выполнением одного run.
//
// Orchestrator — центральный компонент системы, который:
//   - Валидирует скрипт и строит DAG шагов
//   - Открывает сессию stateful-провайдера, если session_provider задан
//   - Выполняет поколения DAG строго последовательно,
//     шаги внутри поколения — конкурентно
//   - Пополняет RunContext результатами завершённых шагов
//   - Гарантированно закрывает сессию ровно один раз
type Orchestrator struct {
	executor  *executor.StepExecutor
	resolver  executor.ConnectionResolver
	registry  *strategy.Registry
	publisher *events.Publisher
	logger    *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	Executor *executor.StepExecutor
	Resolver executor.ConnectionResolver
	Registry *strategy.Registry

	// Publisher — публикация событий жизненного цикла run.
	// nil допустим: события молча не публикуются.
	Publisher *events.Publisher

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		executor:  cfg.Executor,
		resolver:  cfg.Resolver,
		registry:  cfg.Registry,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}

// Outcome — итог run: карта имя шага → сырой результат либо
// {"error": "<Kind>: <message>"} для упавшего шага.
type Outcome struct {
	// Run — запись о выполнении.
	Run *domain.Run

	// Results — результаты по именам шагов. При падении содержит
	// записи всех завершённых поколений плюс ошибку упавшего шага;
	// шаги не начатых поколений отсутствуют.
	Results map[string]any

	// FailedStep — имя упавшего шага, пустое при успехе.
	FailedStep string
}

// Failed сообщает, завершился ли run ошибкой шага.
func (o *Outcome) Failed() bool { return o.FailedStep != "" }

// stepOutcome — итог одного шага внутри поколения.
type stepOutcome struct {
	step   *domain.Step
	result any
	err    error
}

// Run выполняет скрипт.
//
// Ошибки шагов не возвращаются как error: они записываются в
// Outcome.Results и прерывают оставшиеся поколения. Error возвращается
// только для фатальных ошибок конфигурации, до старта первого шага.
func (o *Orchestrator) Run(ctx context.Context, script *domain.Script, scriptInput, sessionVars map[string]any) (*Outcome, error) {
	if err := engine.ValidateScript(script); err != nil {
		return nil, &ConfigError{Script: script.Name, Err: err}
	}

	graph, err := engine.BuildGraph(script.Steps)
	if err != nil {
		return nil, &ConfigError{Script: script.Name, Err: err}
	}

	run := domain.NewRun(script.Name, scriptInput)
	log := o.logger.With("run_id", run.ID, "script", script.Name)
	log.Info("starting run", "steps", graph.Size())

	// Сессия открывается до первого поколения и закрывается ровно
	// один раз после последнего, независимо от исхода run.
	var sess *executor.SessionState
	if script.SessionProvider != "" {
		sess, err = o.startSession(ctx, script, sessionVars)
		if err != nil {
			return nil, &ConfigError{Script: script.Name, Err: err}
		}
		telemetry.ActiveSessions.Inc()
		defer o.endSession(ctx, log, sess)
	}

	o.publisher.RunStarted(ctx, run)
	telemetry.RunsStarted.Inc()

	rc := engine.NewRunContext(scriptInput, sessionVars)
	outcome := &Outcome{
		Run:     run,
		Results: make(map[string]any, graph.Size()),
	}

	for genIdx, generation := range graph.Generations() {
		log.Debug("executing generation", "index", genIdx, "steps", generation)

		outs := o.executeGeneration(ctx, graph, generation, rc, sess)

		// Результаты применяются только здесь, после возврата всех
		// задач поколения: конкурентных писателей RunContext нет.
		failed := false
		for _, out := range outs {
			if out.err != nil {
				kind := errorKind(out.err)
				log.Error("step failed",
					"step_id", out.step.ID,
					"step_name", out.step.Name,
					"kind", kind,
					"error", out.err,
				)
				outcome.Results[out.step.Name] = map[string]any{
					"error": fmt.Sprintf("%s: %v", kind, out.err),
				}
				outcome.FailedStep = out.step.Name
				o.publisher.StepFinished(ctx, run.ID, out.step.ID, out.step.Name, string(domain.RunStatusFailed), out.err.Error())
				telemetry.StepsTotal.WithLabelValues("failed").Inc()
				failed = true
				continue
			}

			outputs := o.extractOutputs(log, out.step, out.result)
			rc.SetStep(out.step.ID, out.result, outputs)
			outcome.Results[out.step.Name] = out.result
			o.publisher.StepFinished(ctx, run.ID, out.step.ID, out.step.Name, string(domain.RunStatusSucceeded), "")
			telemetry.StepsTotal.WithLabelValues("succeeded").Inc()
		}

		if failed {
			log.Warn("aborting remaining generations", "failed_step", outcome.FailedStep)
			break
		}
	}

	if outcome.Failed() {
		run.MarkFailed(fmt.Sprintf("step %q failed", outcome.FailedStep))
		telemetry.RunsTotal.WithLabelValues("failed").Inc()
	} else {
		run.MarkSucceeded()
		telemetry.RunsTotal.WithLabelValues("succeeded").Inc()
	}
	o.publisher.RunFinished(ctx, run)

	log.Info("run finished",
		"status", run.Status,
		"duration", run.Duration(),
	)
	return outcome, nil
}

// executeGeneration запускает все шаги поколения конкурентно
// и дожидается каждого, не прерываясь на отдельных ошибках.
func (o *Orchestrator) executeGeneration(ctx context.Context, graph *engine.Graph, generation []string, rc *engine.RunContext, sess *executor.SessionState) []stepOutcome {
	outs := make([]stepOutcome, len(generation))

	var wg sync.WaitGroup
	for i, stepID := range generation {
		step := graph.Step(stepID)

		wg.Add(1)
		go func(i int, step *domain.Step) {
			defer wg.Done()

			started := time.Now()
			result, err := o.executor.Execute(ctx, step, rc, sess)
			telemetry.StepDuration.Observe(time.Since(started).Seconds())

			outs[i] = stepOutcome{step: step, result: result, err: err}
		}(i, step)
	}
	wg.Wait()

	return outs
}

// extractOutputs применяет outputs-запросы шага к его результату.
// Ошибки извлечения мягкие: логируются, output пропускается.
func (o *Orchestrator) extractOutputs(log *slog.Logger, step *domain.Step, result any) map[string]any {
	if len(step.Outputs) == 0 {
		return nil
	}

	outputs := make(map[string]any, len(step.Outputs))
	for name, query := range step.Outputs {
		value, err := engine.Extract(query, result)
		if err != nil {
			log.Warn("output extraction failed",
				"step_id", step.ID,
				"output", name,
				"error", err,
			)
			continue
		}
		outputs[name] = value
	}
	return outputs
}
