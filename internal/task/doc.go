// Package task creates tasks and hands them to delivery, and provides the
// operator controls that act on many tasks at once: cancel, delete, cleanup
// and reaping of tasks stuck in a non-terminal state.
package task
