// Package settings stores per-tenant add-on state.
//
// Every value is scoped under a tenant's client key ("{clientKey}:{name}"),
// which lets uninstall cleanup enumerate and delete everything a tenant
// owns with a single key scan. The store is a plain key/value service:
// no multi-key transactions, no cross-tenant reads.
//
// Drivers:
//   - redis: shared instance, matches the add-on's hosted deployment
//   - sqlite: single-node deployments
//   - memory: tests and local development
package settings
