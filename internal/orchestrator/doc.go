// Package orchestrator выполняет workflow-скрипты: строит DAG шагов,
// ведёт run по поколениям (поколения последовательно, шаги внутри
// поколения конкурентно) и владеет жизненным циклом сессии
// stateful-провайдера.
//
// Контракт результата: карта имя шага → сырой результат либо
// {"error": "<Kind>: <message>"}. Падение шага прерывает оставшиеся
// поколения, но метод возвращает частичные результаты, а не ошибку.
package orchestrator
