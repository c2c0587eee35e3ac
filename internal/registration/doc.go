// Package registration определяет workflow регистрации клиента.
//
// Три шага:
//  1. create-customer-record — запись клиента в хранилище
//  2. send-email-verification — письмо с токеном и ожидание
//     перехода по ссылке (до 48 часов)
//  3. send-welcome-email — приветственное письмо
//
// Определение собирается поверх движка (пакет engine); побочные
// эффекты шагов мемоизируются журналом и не повторяются при replay.
package registration
