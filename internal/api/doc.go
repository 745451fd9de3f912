// Package api provides the HTTP handlers of the task orchestration service:
// task submission and polling, the worker callback the delivery queue
// invokes, AI provider health, and operator controls.
package api
