// Package postgres implements the store interfaces on PostgreSQL through the
// pgx database/sql driver. Task writes lock the task row with SELECT ... FOR
// UPDATE so the terminal-state check and the write happen in one transaction.
package postgres
