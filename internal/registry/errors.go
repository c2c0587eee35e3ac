package registry

import "errors"

var (
	// ErrUnknownCallback — callback с таким id не регистрировался.
	ErrUnknownCallback = errors.New("unknown callback id")

	// ErrAlreadyResolved — callback уже разрешён ранее.
	ErrAlreadyResolved = errors.New("callback already resolved")

	// ErrCallbackExpired — дедлайн callback прошёл; при попытке
	// разрешения он форсируется с исходом TIMEOUT.
	ErrCallbackExpired = errors.New("callback expired")
)
