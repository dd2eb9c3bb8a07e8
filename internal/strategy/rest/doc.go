// Package rest реализует декларативную REST-стратегию: поведение
// провайдера целиком описывается каталогом подключения (базовый URL,
// аутентификация, шаблоны действий), без кода под конкретный API.
package rest
