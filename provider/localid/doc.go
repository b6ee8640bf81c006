// Package localid is a self-hosted identity backend backed by Bun and
// bcrypt credentials. It keeps the current principal in process, which
// makes it a good fit for tests and single-binary deployments that do not
// want to depend on the hosted identity service.
package localid
