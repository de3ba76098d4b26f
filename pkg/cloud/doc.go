// Package cloud is the in-process control plane the reconciliation driver
// talks to: credential loading from the environment, scope-aware RBAC, and
// admission control that enforces policy assignments against resource
// requests. It stands in for a hosted cloud API and is backed entirely by
// pkg/state.
package cloud
