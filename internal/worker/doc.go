// Package worker executes delivered tasks. The Runner owns the task's state
// transitions; a Pipeline per task type does the work and reports progress.
//
// Deliveries are at-least-once. A task that is already terminal is
// acknowledged without running, and every progress write re-checks the
// task's status so a cancelled task stops at its next report.
package worker
