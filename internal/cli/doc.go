// Package cli реализует инструмент командной строки Continuum.
//
// CLI — клиентская утилита для взаимодействия с Continuum API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
//
// Команды организованы по ресурсам:
//   - register: старт workflow регистрации клиента
//   - verify: подтверждение email по токену
//   - run: list, show, steps
//   - customer: show
//
// Каждая группа создаётся через фабричную функцию (NewRunCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
//
// Данные выводятся в stdout (таблицы или JSON с флагом --json),
// сообщения — в stderr, что позволяет использовать pipe:
// continuum run list --json | jq .
package cli
