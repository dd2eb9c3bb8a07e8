// Package sqlpg реализует PostgreSQL-стратегию поверх pgx:
// выполнение SQL-запросов с именованными параметрами и обход
// структуры базы через information_schema.
package sqlpg
