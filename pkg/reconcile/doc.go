// Package reconcile implements the reconciliation driver that converges
// policy state for one workspace scope: validate, plan, gate, apply.
//
// The driver follows a snapshot-and-serial model. Plan reads the current
// snapshot and computes an ordered change set against it, remembering the
// snapshot serial. Apply acquires the scope lock, re-reads the snapshot,
// and refuses to proceed when the serial moved since the plan was taken.
// Changes execute in dependency order, definitions before the assignments
// that reference them and the reverse for destroy, and the resulting
// snapshot commits in a single transaction. The first failing change aborts
// the run with nothing committed.
//
// Errors are classified DriverErrors. Permanent errors (schema violations,
// missing credentials, permission denials, gate denials) need a human.
// Conflict errors (lock contention, stale serial) need a fresh plan.
// Transient errors (backend I/O) may be retried as-is.
//
// A typical run:
//
//	driver, err := reconcile.NewDriver(reconcile.Config{
//		Store: store,
//		Scope: scope,
//	})
//	if err != nil { ... }
//	if err := driver.Init(ctx); err != nil { ... }
//	plan, err := driver.Plan(ctx, desired, reconcile.PlanOptions{})
//	if err != nil { ... }
//	if plan.HasChanges() {
//		snap, err := driver.Apply(ctx, plan)
//		...
//	}
package reconcile
