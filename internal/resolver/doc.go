// Package resolver разрешает источники подключений ("user:my-db",
// "file:./db.conn.yaml") в модель подключения и её секреты.
package resolver
