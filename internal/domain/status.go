package domain

// RunStatus — статус выполнения workflow run.
//
// Жизненный цикл:
//
//	RUNNING → SUSPENDED → RUNNING → … → COMPLETED
//	                    ↘ TIMED_OUT
//	        ↘ FAILED
type RunStatus string

const (
	// RunStatusRunning — run выполняет шаги (или ожидает, пока engine
	// его подхватит после рестарта).
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSuspended — run приостановлен на callback-wait шаге
	// и ожидает внешнего сигнала. Не занимает поток.
	RunStatusSuspended RunStatus = "SUSPENDED"

	// RunStatusCompleted — все шаги успешно выполнены.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusFailed — шаг завершился невосстановимой ошибкой.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusTimedOut — callback не пришёл до дедлайна.
	RunStatusTimedOut RunStatus = "TIMED_OUT"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
// Терминальный run больше не мутирует и не может быть возобновлён.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusTimedOut:
		return true
	default:
		return false
	}
}

// CallbackOutcome — исход разрешения callback.
type CallbackOutcome string

const (
	// OutcomeSuccess — внешний сигнал пришёл вовремя.
	OutcomeSuccess CallbackOutcome = "SUCCESS"

	// OutcomeTimeout — дедлайн истёк, callback разрешён принудительно.
	OutcomeTimeout CallbackOutcome = "TIMEOUT"
)

// CustomerStatus — статус клиента во внешнем хранилище.
// Отражает прогресс workflow регистрации.
//
//	REGISTERED → VERIFICATION_EMAIL_SENT → EMAIL_VERIFIED
type CustomerStatus string

const (
	// CustomerStatusRegistered — запись создана первым шагом workflow.
	CustomerStatusRegistered CustomerStatus = "REGISTERED"

	// CustomerStatusVerificationSent — письмо с токеном отправлено.
	CustomerStatusVerificationSent CustomerStatus = "VERIFICATION_EMAIL_SENT"

	// CustomerStatusEmailVerified — клиент перешёл по ссылке.
	CustomerStatusEmailVerified CustomerStatus = "EMAIL_VERIFIED"
)
