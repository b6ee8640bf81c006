// Package accounts implements the authentication and session lifecycle for
// the OSHub bounty marketplace: account sign-up with email verification,
// sign-in that refuses to persist unverified sessions, a locally cached
// session mirror for instant UI state, and route guards for protected and
// auth-only pages.
//
// Session reconciliation:
//   - The session cache is the local mirror of the last known authenticated
//     user. The identity backend is the source of truth; InitializeAuth and
//     the long-lived OnAuthStateChange subscription re-sync the cache on
//     every backend notification.
//   - Cache writes carry a monotonic operation sequence so a slow SignIn
//     resolving after a later SignOut cannot resurrect a cleared session.
//
// Identity backends:
//   - IdentityBackend abstracts the remote provider. provider/identikit
//     talks to the hosted identity service over HTTP and validates its ID
//     tokens against the service JWKS. provider/localid is a self-hosted
//     backend on Bun/SQLite with bcrypt credentials, suitable for tests and
//     single-binary deployments.
package accounts
