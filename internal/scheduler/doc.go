// Package scheduler запускает workflow-скрипты по cron-расписанию
// из файла schedules.yaml.
package scheduler
