package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Conduit/internal/domain"
	"github.com/shaiso/Conduit/internal/executor"
	"github.com/shaiso/Conduit/internal/strategy"
	"github.com/shaiso/Conduit/internal/telemetry"
)

// startSession открывает сессию stateful-провайдера до первого поколения.
//
// Источником сессии служит первый по объявлению шаг с connection_source:
// его подключение разрешается, а стратегия обязана поддерживать сессии.
// Отсутствие такого шага или способности — фатальная ошибка конфигурации.
func (o *Orchestrator) startSession(ctx context.Context, script *domain.Script, sessionVars map[string]any) (*executor.SessionState, error) {
	var setupStep *domain.Step
	for i := range script.Steps {
		if script.Steps[i].ConnectionSource != "" {
			setupStep = &script.Steps[i]
			break
		}
	}
	if setupStep == nil {
		return nil, ErrSessionStepMissing
	}

	conn, secrets, err := o.resolver.Resolve(ctx, setupStep.ConnectionSource)
	if err != nil {
		return nil, fmt.Errorf("resolve session connection %q: %w", setupStep.ConnectionSource, err)
	}

	strat, err := o.registry.Lookup(conn.ProviderKey())
	if err != nil {
		return nil, err
	}
	if strat.Key() != script.SessionProvider {
		return nil, fmt.Errorf("%w: want %q, got %q",
			ErrSessionProviderMismatch, script.SessionProvider, strat.Key())
	}

	provider, ok := strat.(strategy.SessionProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider %q", ErrSessionUnsupported, strat.Key())
	}

	session, err := provider.StartSession(ctx, conn, secrets, sessionVars)
	if err != nil {
		return nil, fmt.Errorf("start session with %q: %w", strat.Key(), err)
	}

	o.logger.Info("session started",
		"provider", strat.Key(),
		"session_id", session.ID(),
	)

	return &executor.SessionState{
		Provider:    provider,
		ProviderKey: strat.Key(),
		Session:     session,
	}, nil
}

// endSession закрывает сессию ровно один раз.
// Ошибки закрытия логируются и никогда не меняют итог run.
// Контекст отвязывается от отмены: teardown обязан пройти и после
// отмены родительского контекста.
func (o *Orchestrator) endSession(ctx context.Context, log *slog.Logger, sess *executor.SessionState) {
	defer telemetry.ActiveSessions.Dec()

	if err := sess.Provider.EndSession(context.WithoutCancel(ctx), sess.Session); err != nil {
		log.Error("session teardown failed",
			"provider", sess.ProviderKey,
			"session_id", sess.Session.ID(),
			"error", err,
		)
		return
	}

	log.Info("session ended", "provider", sess.ProviderKey)
}
