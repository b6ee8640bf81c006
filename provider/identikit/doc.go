// Package identikit talks to the hosted identity service over its REST
// API. Sessions are represented by the service's ID tokens; the backend
// validates them against the service JWKS when a validator is configured.
package identikit
