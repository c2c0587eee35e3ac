package token

import "errors"

// Ошибки проверки токена. Все три — ожидаемые, клиентские ошибки:
// retry бессмысленен, токен нужно выпускать заново.
var (
	// ErrMalformedToken — токен не разбирается: нет разделителя,
	// пустые части или невалидный base64url.
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidSignature — MAC не совпал с содержимым.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrTokenExpired — подпись верна, но срок действия истёк.
	ErrTokenExpired = errors.New("token expired")
)
