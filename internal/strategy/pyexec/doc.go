// Package pyexec реализует стратегию запуска python-скриптов
// в подпроцессе с JSON-протоколом через stdin/stdout.
package pyexec
