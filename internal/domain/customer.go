package domain

import (
	"time"

	"github.com/google/uuid"
)

// Customer — запись клиента во внешнем хранилище.
//
// Хранилище — внешний коллаборатор workflow: engine обновляет Status
// как побочный эффект шагов через CustomerStore, но схемой не владеет.
type Customer struct {
	// ID — идентификатор клиента (ULID, лексикографически сортируемый).
	ID string `json:"id"`

	// Email — адрес клиента, уникален в хранилище.
	Email string `json:"email"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	// PasswordHash — bcrypt-хэш пароля. Сырой пароль не хранится.
	PasswordHash string `json:"-"`

	// Status — прогресс регистрации.
	Status CustomerStatus `json:"status"`

	// CallbackID — callback приостановленного run регистрации.
	// Заполняется при отправке письма подтверждения, используется
	// verify-триггером для возобновления run.
	CallbackID *uuid.UUID `json:"callback_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CustomerUpdate — частичное обновление записи клиента.
// Nil-поля не трогаются.
type CustomerUpdate struct {
	Status     *CustomerStatus
	CallbackID *uuid.UUID
}
