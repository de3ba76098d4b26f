// Package rule implements policy rule documents: JSON condition/effect
// pairs evaluated against resource properties at admission time. A valid
// document carries exactly one condition (a single field comparison such as
// notEquals, like, or in) and exactly one effect (deny, audit, append, ...).
package rule
