// Package store defines the refresh token record model and the persistence
// contract the session engine rotates against. The postgres subpackage is
// the production implementation; the in-memory implementation backs tests
// and single-process deployments.
package store
