// Package executor выполняет отдельные шаги workflow-скрипта:
// рендерит параметры через engine, разрешает подключение через
// ConnectionResolver и диспетчеризует действие в зарегистрированную
// стратегию по её способностям.
package executor
