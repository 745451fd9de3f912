// Package store defines the persistence interfaces for tasks and questions
// and the transaction helpers their implementations share. Business logic
// depends on these interfaces, never on a specific database.
package store
