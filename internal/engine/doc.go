// Package engine реализует движок долгоживущих workflow.
//
// Движок ведёт run через последовательность шагов определения.
// Каждый успешный шаг фиксируется в журнале; после сбоя run
// проигрывается заново с начала, и зафиксированные шаги не
// выполняются повторно — только их результаты подставляются.
//
// Шаг с WaitSpec приостанавливает run до разрешения callback'а:
// run уходит в SUSPENDED и не занимает ни горутину, ни соединение.
// Событие callback.resolved возобновляет его с того же места.
package engine
