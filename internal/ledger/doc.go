// Package ledger реализует журнал шагов — память workflow о том,
// какие шаги уже выполнялись и с каким результатом.
//
// Запись фиксируется после успешного выполнения шага и больше никогда
// не меняется. Повторное исполнение того же шага (replay после сбоя,
// конкурентный драйв) возвращает зафиксированный результат вместо
// повторного выполнения побочного эффекта.
package ledger
