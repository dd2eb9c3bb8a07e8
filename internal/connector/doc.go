// Package connector — фасад движка: сборка реестра стратегий,
// резолвера и оркестратора, точки входа для выполнения скриптов
// и проверки подключений.
package connector
