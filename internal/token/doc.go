// Package token реализует самодостаточный verification token:
// подписанный, самоистекающий носитель subject id.
//
// Токен не хранится на сервере — валидность определяется только его
// собственным подписанным содержимым и текущим временем. Любой процесс,
// владеющий секретом, может проверить токен, выданный любым другим
// процессом, поэтому verify-endpoint масштабируется без общего состояния.
package token
