// Package seal provides authenticated symmetric encryption of serialized
// session records with a per-process, non-exportable key.
//
// # Blob format
//
// Sealed blobs are nonce‖ciphertext‖tag. The nonce is drawn fresh for every
// Seal call and prefixed so Unseal is self-contained.
//
// # Key lifetime
//
// The key is generated by [Provider.Initialize] and lives only in process
// memory. Blobs sealed by a previous process fail [Provider.Unseal] with
// [ErrIntegrity]; callers treat that as "no valid session".
//
// # What this package must NOT do
//
//   - Expose or persist key material.
//   - Interpret the plaintext it protects.
//   - Import sessionguard, store, or session.
package seal
