package registration

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// minPasswordLength — минимальная длина пароля.
const minPasswordLength = 8

// ErrInvalidInput — входные данные регистрации не прошли валидацию.
var ErrInvalidInput = errors.New("invalid registration input")

// Input — входные данные workflow регистрации.
type Input struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// Validate проверяет обязательные поля.
func (in *Input) Validate() error {
	var problems []string

	if _, err := mail.ParseAddress(in.Email); err != nil {
		problems = append(problems, "email is invalid")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		problems = append(problems, "first_name is required")
	}
	if strings.TrimSpace(in.LastName) == "" {
		problems = append(problems, "last_name is required")
	}
	if len(in.Password) < minPasswordLength {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// ToMap сериализует Input в payload run.
func (in *Input) ToMap() map[string]any {
	return map[string]any{
		"email":      in.Email,
		"first_name": in.FirstName,
		"last_name":  in.LastName,
		"password":   in.Password,
	}
}

// parseInput восстанавливает Input из payload run.
func parseInput(raw map[string]any) (*Input, error) {
	str := func(key string) string {
		v, _ := raw[key].(string)
		return v
	}

	in := &Input{
		Email:     str("email"),
		FirstName: str("first_name"),
		LastName:  str("last_name"),
		Password:  str("password"),
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}
