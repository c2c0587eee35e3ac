package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Continuum/internal/domain"
	"github.com/shaiso/Continuum/internal/repo"
	"github.com/shaiso/Continuum/internal/telemetry"
)

// RunStore — персистентное хранилище runs.
type RunStore interface {
	Create(ctx context.Context, run *domain.WorkflowRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowRun, error)
	// Transition — CAS перехода статуса; ErrInvalidState при промахе.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.RunStatus) error
	// Suspend — CAS RUNNING → SUSPENDED с привязкой callback.
	Suspend(ctx context.Context, id, callbackID uuid.UUID) error
	// MarkFailed — CAS перехода в FAILED с текстом ошибки.
	MarkFailed(ctx context.Context, id uuid.UUID, from domain.RunStatus, msg string) error
	// ListRunning — кандидаты на re-drive после рестарта.
	ListRunning(ctx context.Context, limit int) ([]domain.WorkflowRun, error)
	// ListSuspended — кандидаты на сверку с callback'ами.
	ListSuspended(ctx context.Context, limit int) ([]domain.WorkflowRun, error)
}

// Journal — журнал шагов (см. пакет ledger).
type Journal interface {
	RecordOrGet(ctx context.Context, runID uuid.UUID, stepName string, produce func(ctx context.Context) (map[string]any, error)) (map[string]any, error)
	History(ctx context.Context, runID uuid.UUID) ([]domain.StepRecord, error)
}

// Registrar регистрирует callback'и wait-шагов (см. пакет registry).
type Registrar interface {
	Register(ctx context.Context, runID uuid.UUID, stepName string, timeout time.Duration) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.CallbackRegistration, error)
}

// Engine — движок выполнения workflow runs.
//
// Внутри процесса драйв одного run сериализуется per-run мьютексом;
// между процессами консистентность держат CAS-переходы статуса и
// первичный ключ журнала.
type Engine struct {
	runs      RunStore
	journal   Journal
	registrar Registrar
	defs      map[string]*Definition
	logger    *slog.Logger

	pollInterval time.Duration
	pollLimit    int

	locks sync.Map // uuid.UUID -> *sync.Mutex

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Config — параметры Engine.
type Config struct {
	Runs      RunStore
	Journal   Journal
	Registrar Registrar
	Logger    *slog.Logger

	// PollInterval — период recovery poll (по умолчанию 30s).
	PollInterval time.Duration
	// PollLimit — максимум runs за один проход (по умолчанию 100).
	PollLimit int
}

// New создаёт Engine.
func New(cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.PollLimit <= 0 {
		cfg.PollLimit = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		runs:         cfg.Runs,
		journal:      cfg.Journal,
		registrar:    cfg.Registrar,
		defs:         make(map[string]*Definition),
		logger:       cfg.Logger,
		pollInterval: cfg.PollInterval,
		pollLimit:    cfg.PollLimit,
	}
}

// RegisterDefinition регистрирует определение workflow.
// Вызывается при старте процесса, до Start.
func (e *Engine) RegisterDefinition(def *Definition) {
	e.defs[def.ID] = def
}

// Start запускает фоновый recovery poll.
//
// Poll подбирает runs, застрявшие в RUNNING (упавший процесс,
// потерянное событие run.created), и сверяет SUSPENDED runs с их
// callback'ами: если callback уже разрешён, а событие потерялось,
// исход применяется здесь.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(e.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.recoverRunning(ctx)
				e.reconcileSuspended(ctx)
			}
		}
	}()

	e.logger.Info("engine started", "poll_interval", e.pollInterval)
}

// Stop останавливает фоновые горутины и дожидается их завершения.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info("engine stopped")
}

// recoverRunning проигрывает заново все runs в статусе RUNNING.
// Зафиксированные шаги при этом не перевыполняются.
func (e *Engine) recoverRunning(ctx context.Context) {
	runs, err := e.runs.ListRunning(ctx, e.pollLimit)
	if err != nil {
		e.logger.Error("recovery poll failed", "error", err)
		return
	}

	for i := range runs {
		runID := runs[i].ID
		if err := e.Drive(ctx, runID); err != nil {
			e.logger.Error("recovery drive failed", "run_id", runID, "error", err)
		}
	}
}

// reconcileSuspended применяет исходы уже разрешённых callback'ов к
// SUSPENDED runs. Потерянное событие callback.resolved (сбой
// публикации, падение брокера) иначе оставило бы run приостановленным
// навсегда: sweep разрешённый callback повторно не трогает.
func (e *Engine) reconcileSuspended(ctx context.Context) {
	runs, err := e.runs.ListSuspended(ctx, e.pollLimit)
	if err != nil {
		e.logger.Error("reconcile poll failed", "error", err)
		return
	}

	for i := range runs {
		run := &runs[i]
		if run.PendingCallbackID == nil {
			continue
		}

		cb, err := e.registrar.Get(ctx, *run.PendingCallbackID)
		if err != nil {
			e.logger.Error("reconcile: load callback",
				"run_id", run.ID, "callback_id", *run.PendingCallbackID, "error", err)
			continue
		}
		if !cb.Resolved {
			continue
		}

		if err := e.Resume(ctx, run.ID, cb.StepName, cb.Outcome, cb.Result); err != nil {
			e.logger.Error("reconcile resume failed", "run_id", run.ID, "error", err)
		}
	}
}

// Drive продвигает run вперёд, насколько это возможно: выполняет шаги
// по порядку, пока run не завершится или не приостановится на
// wait-шаге. Идемпотентен — лишний вызов ничего не ломает.
func (e *Engine) Drive(ctx context.Context, runID uuid.UUID) error {
	unlock := e.lockRun(runID)
	defer unlock()

	run, err := e.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	// Терминальный run и run в ожидании callback'а драйвить нечего.
	if run.Status.IsTerminal() {
		e.releaseRun(runID)
		return nil
	}
	if run.Status != domain.RunStatusRunning {
		return nil
	}

	def, ok := e.defs[run.DefinitionID]
	if !ok {
		e.failRun(ctx, run, fmt.Errorf("%w: %s", ErrDefinitionNotFound, run.DefinitionID))
		return nil
	}

	ec, err := e.buildExecContext(ctx, run)
	if err != nil {
		return err
	}

	logger := telemetry.WithRunID(e.logger, runID.String())

	for i := range def.Steps {
		step := &def.Steps[i]

		if _, done := ec.Results[step.Name]; done {
			telemetry.StepsMemoized.WithLabelValues(step.Name).Inc()
			continue
		}

		if step.Wait != nil {
			suspended, err := e.executeWaitStep(ctx, run, step, ec)
			if err != nil {
				e.failRun(ctx, run, err)
				return nil
			}
			if suspended {
				logger.Info("run suspended", "step", step.Name)
				return nil
			}
			continue
		}

		if err := e.executeStep(ctx, run, step, ec); err != nil {
			e.failRun(ctx, run, err)
			return nil
		}

		logger.Debug("step completed", "step", step.Name)
	}

	if err := e.runs.Transition(ctx, runID, domain.RunStatusRunning, domain.RunStatusCompleted); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			// Кто-то уже завершил run — исход зафиксирован.
			return nil
		}
		return fmt.Errorf("complete run: %w", err)
	}

	telemetry.RunsCompleted.Inc()
	logger.Info("run completed")
	e.releaseRun(runID)

	return nil
}

// executeStep выполняет обычный шаг через журнал с политикой повторов.
func (e *Engine) executeStep(ctx context.Context, run *domain.WorkflowRun, step *Step, ec *ExecContext) error {
	result, err := e.journal.RecordOrGet(ctx, run.ID, step.Name, func(ctx context.Context) (map[string]any, error) {
		telemetry.StepsExecuted.WithLabelValues(step.Name).Inc()
		return runWithRetry(ctx, step.Retry, func(ctx context.Context) (map[string]any, error) {
			return step.Run(ctx, ec)
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStepFailed, step.Name, err)
	}

	ec.Results[step.Name] = result
	return nil
}

// executeWaitStep обрабатывает wait-шаг.
//
// Регистрация callback'а и её побочный эффект (OnRegister) мемоизируются
// единой записью журнала под именем "<шаг>/register": сбой между
// регистрацией и приостановкой не приводит к повторному письму.
// Возвращает true, если run приостановлен.
func (e *Engine) executeWaitStep(ctx context.Context, run *domain.WorkflowRun, step *Step, ec *ExecContext) (bool, error) {
	regResult, err := e.journal.RecordOrGet(ctx, run.ID, step.Name+"/register", func(ctx context.Context) (map[string]any, error) {
		callbackID, err := e.registrar.Register(ctx, run.ID, step.Name, step.Wait.Timeout)
		if err != nil {
			return nil, err
		}
		telemetry.CallbacksRegistered.Inc()

		if step.Wait.OnRegister != nil {
			if err := step.Wait.OnRegister(ctx, ec, callbackID); err != nil {
				return nil, err
			}
		}

		return map[string]any{"callback_id": callbackID.String()}, nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrStepFailed, step.Name, err)
	}

	raw, _ := regResult["callback_id"].(string)
	callbackID, err := uuid.Parse(raw)
	if err != nil {
		return false, fmt.Errorf("parse registered callback id: %w", err)
	}

	if err := e.runs.Suspend(ctx, run.ID, callbackID); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			// Статус уже сменился в другом процессе.
			return true, nil
		}
		return false, fmt.Errorf("suspend run: %w", err)
	}

	return true, nil
}

// Resume возобновляет run после разрешения callback'а.
//
// SUCCESS: результат разрешения мемоизируется как запись wait-шага,
// run переходит SUSPENDED → RUNNING и драйвится дальше.
// TIMEOUT: run завершается в TIMED_OUT.
// Повторная доставка события безвредна: переходы защищены CAS.
func (e *Engine) Resume(ctx context.Context, runID uuid.UUID, stepName string, outcome domain.CallbackOutcome, result map[string]any) error {
	unlock := e.lockRun(runID)

	run, err := e.runs.GetByID(ctx, runID)
	if err != nil {
		unlock()
		return fmt.Errorf("load run: %w", err)
	}

	logger := telemetry.WithRunID(e.logger, runID.String())

	if run.Status.IsTerminal() {
		e.releaseRun(runID)
		unlock()
		return nil
	}

	if outcome == domain.OutcomeTimeout {
		defer unlock()

		// Run мог не дойти до SUSPENDED (сбой до фиксации приостановки),
		// поэтому переход идёт из текущего статуса.
		err := e.runs.Transition(ctx, runID, run.Status, domain.RunStatusTimedOut)
		if errors.Is(err, repo.ErrInvalidState) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("time out run: %w", err)
		}

		telemetry.RunsTimedOut.Inc()
		telemetry.CallbacksResolved.WithLabelValues(string(domain.OutcomeTimeout)).Inc()
		logger.Info("run timed out", "step", stepName)
		e.releaseRun(runID)

		return nil
	}

	// Результат callback'а становится записью wait-шага: при любом
	// последующем replay шаг считается выполненным.
	if result == nil {
		result = map[string]any{}
	}
	if _, err := e.journal.RecordOrGet(ctx, runID, stepName, func(ctx context.Context) (map[string]any, error) {
		return result, nil
	}); err != nil {
		unlock()
		return fmt.Errorf("record callback result: %w", err)
	}

	if err := e.runs.Transition(ctx, runID, domain.RunStatusSuspended, domain.RunStatusRunning); err != nil {
		unlock()
		if errors.Is(err, repo.ErrInvalidState) {
			// Уже возобновлён (повторная доставка события).
			return nil
		}
		return fmt.Errorf("resume run: %w", err)
	}

	telemetry.CallbacksResolved.WithLabelValues(string(domain.OutcomeSuccess)).Inc()
	logger.Info("run resumed", "step", stepName)

	unlock()
	return e.Drive(ctx, runID)
}

// failRun фиксирует невосстановимую ошибку шага.
func (e *Engine) failRun(ctx context.Context, run *domain.WorkflowRun, cause error) {
	logger := telemetry.WithRunID(e.logger, run.ID.String())

	if err := e.runs.MarkFailed(ctx, run.ID, run.Status, cause.Error()); err != nil {
		if !errors.Is(err, repo.ErrInvalidState) {
			logger.Error("mark run failed", "error", err)
		}
		return
	}

	telemetry.RunsFailed.Inc()
	logger.Error("run failed", "error", cause)
	e.releaseRun(run.ID)
}

// buildExecContext восстанавливает контекст выполнения из журнала.
func (e *Engine) buildExecContext(ctx context.Context, run *domain.WorkflowRun) (*ExecContext, error) {
	history, err := e.journal.History(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("load step history: %w", err)
	}

	results := make(map[string]map[string]any, len(history))
	for i := range history {
		results[history[i].StepName] = history[i].Result
	}

	return &ExecContext{
		RunID:   run.ID,
		Input:   run.Input,
		Results: results,
	}, nil
}

// lockRun берёт per-run мьютекс и возвращает функцию разблокировки.
func (e *Engine) lockRun(runID uuid.UUID) func() {
	v, _ := e.locks.LoadOrStore(runID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// releaseRun выбрасывает мьютекс run из карты после перехода в
// терминальный статус; иначе карта росла бы с каждым run. Гонка со
// свежим LoadOrStore безвредна: любой переход статуса защищён CAS
// в хранилище.
func (e *Engine) releaseRun(runID uuid.UUID) {
	e.locks.Delete(runID)
}
