// Package config собирает конфигурацию процессов Continuum
// из переменных окружения.
package config
