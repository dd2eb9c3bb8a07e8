package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conduit/internal/connector"
)

// ErrNoEntries — файл расписаний пуст.
var ErrNoEntries = errors.New("schedule file defines no entries")

// cronParser — парсер cron-выражений (стандартные 5 полей).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Entry — одна запись расписания из schedules.yaml.
type Entry struct {
	// Name — имя расписания.
	Name string `yaml:"name"`

	// Script — путь к workflow-скрипту.
	Script string `yaml:"script"`

	// Cron — cron-выражение запуска.
	Cron string `yaml:"cron"`

	// Input — вход скрипта.
	Input map[string]any `yaml:"input,omitempty"`

	// SessionVariables — переменные сессии.
	SessionVariables map[string]any `yaml:"session_variables,omitempty"`

	// Disabled — запись выключена.
	Disabled bool `yaml:"disabled,omitempty"`
}

// scheduleFile — формат schedules.yaml.
type scheduleFile struct {
	Schedules []Entry `yaml:"schedules"`
}

// Scheduler запускает скрипты по расписанию из schedules.yaml.
type Scheduler struct {
	service *connector.Service
	cron    *cron.Cron
	logger  *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	Service *connector.Service
	Logger  *slog.Logger
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		service: cfg.Service,
		cron:    cron.New(cron.WithParser(cronParser)),
		logger:  logger,
	}
}

// Load читает файл расписаний и регистрирует записи.
func (s *Scheduler) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schedule file: %w", err)
	}

	var file scheduleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("invalid schedule file %s: %w", filepath.Base(path), err)
	}
	if len(file.Schedules) == 0 {
		return fmt.Errorf("%w: %s", ErrNoEntries, path)
	}

	registered := 0
	for _, entry := range file.Schedules {
		if entry.Disabled {
			s.logger.Debug("schedule disabled, skipping", "schedule", entry.Name)
			continue
		}
		if err := s.register(entry); err != nil {
			return err
		}
		registered++
	}

	s.logger.Info("schedules loaded", "path", path, "registered", registered)
	return nil
}

// register добавляет одну запись в cron.
func (s *Scheduler) register(entry Entry) error {
	if entry.Script == "" {
		return fmt.Errorf("schedule %q: script is required", entry.Name)
	}
	if _, err := cronParser.Parse(entry.Cron); err != nil {
		return fmt.Errorf("schedule %q: invalid cron expression %q: %w", entry.Name, entry.Cron, err)
	}

	_, err := s.cron.AddFunc(entry.Cron, func() {
		s.runEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", entry.Name, err)
	}

	s.logger.Info("schedule registered",
		"schedule", entry.Name,
		"cron", entry.Cron,
		"script", entry.Script,
	)
	return nil
}

// runEntry выполняет один запуск по расписанию.
// Ошибки запуска логируются и не останавливают планировщик.
func (s *Scheduler) runEntry(entry Entry) {
	log := s.logger.With("schedule", entry.Name, "script", entry.Script)
	log.Info("scheduled run starting")

	started := time.Now()
	outcome, err := s.service.RunScript(context.Background(), entry.Script, entry.Input, entry.SessionVariables)
	if err != nil {
		log.Error("scheduled run failed to start", "error", err)
		return
	}

	if outcome.Failed() {
		log.Warn("scheduled run failed",
			"failed_step", outcome.FailedStep,
			"duration", time.Since(started),
		)
		return
	}

	log.Info("scheduled run finished",
		"steps", len(outcome.Results),
		"duration", time.Since(started),
	)
}

// Start запускает планировщик.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop останавливает планировщик и дожидается активных запусков.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
