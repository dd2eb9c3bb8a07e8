// Package engine содержит ядро движка выполнения скриптов.
//
// Включает:
//   - parser.go  — загрузка и структурная валидация скрипта из JSON
//   - graph.go   — построение DAG зависимостей и топологические поколения
//   - render.go  — рендеринг шаблонных выражений с сохранением типов
//   - context.go — контекст run (результаты и outputs завершённых шагов)
//   - extract.go — извлечение outputs по query-путям
//
// Engine отвечает за понимание структуры скрипта и определение
// порядка выполнения шагов на основе их зависимостей.
package engine
