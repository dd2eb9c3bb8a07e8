// Package events публикует события жизненного цикла runs и шагов
// в RabbitMQ для внешних подписчиков (дашборды, аудит, вебхуки).
//
// Публикация необязательна: при nil Publisher или недоступном брокере
// движок продолжает работать, ошибки публикации только логируются.
package events
