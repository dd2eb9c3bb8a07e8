// Package transform выполняет декларативные пайплайны преобразования
// данных (.transformer.yaml): выборка и переименование колонок,
// фильтрация, сортировка и запись артефактов в JSON/CSV.
package transform
