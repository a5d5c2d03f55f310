// Package engine executes tasks submitted by triggers: a bounded queue, a
// supervised worker pool, per-task overlap gating, timeouts and panic
// recovery.
package engine
