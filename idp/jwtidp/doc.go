// Package jwtidp is a local identity provider for sessionguard. It issues
// signed refresh tokens (HS256 or Ed25519) and, on renewal, verifies the
// presented token, rejects replays and rotates it.
//
// It is meant for single-node deployments and tests; a clinic running a real
// identity service implements sessionguard.IdentityProvider against that
// service instead.
package jwtidp
