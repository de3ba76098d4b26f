// Package resource defines the declared-state model: policy definitions,
// policy assignments, and the scope hierarchy they attach to. Identifiers
// are derived deterministically from name and scope so that re-applying
// the same declaration converges on the same stored resource.
package resource
