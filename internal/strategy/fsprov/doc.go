// Package fsprov реализует стратегию локальной файловой системы:
// обход и чтение внутри корня подключения, запись файлов и агрегация
// содержимого нескольких источников.
package fsprov
