// Package sweeper реализует фоновую уборку просроченных callback'ов.
//
// Sweeper по cron-расписанию форсирует TIMEOUT для регистраций с
// истекшим дедлайном. Это страховка деливери: даже если по callback'у
// никто никогда не обратится, run не зависнет в SUSPENDED навсегда.
//
// Sweeper можно запускать в нескольких экземплярах: выборка
// просроченных строк идёт с FOR UPDATE SKIP LOCKED.
package sweeper
