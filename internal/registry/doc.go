// Package registry ведёт учёт зарегистрированных callback'ов —
// точек, в которых run приостановлен и ждёт внешнего сигнала.
//
// Callback разрешается ровно один раз: либо внешним сигналом
// (SUCCESS), либо по истечении дедлайна (TIMEOUT). Кто успел первым,
// тот и фиксирует исход; проигравший получает ошибку.
package registry
