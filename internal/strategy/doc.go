// Package strategy определяет контракт backend'ов подключений и их реестр.
//
// Каждый класс внешних систем (REST API, SQL база, файловая система,
// песочница подпроцессов, браузерная сессия) обслуживается одной
// стратегией. Базовый набор способностей обязателен; опциональные
// способности объявлены отдельными интерфейсами и проверяются
// type-assertion'ом в момент диспетчеризации — отсутствие способности
// это типизированная ошибка, а не пропавший метод.
//
// Конкретные стратегии живут в подпакетах: rest, sqlpg, fsprov, pyexec,
// browser.
package strategy
