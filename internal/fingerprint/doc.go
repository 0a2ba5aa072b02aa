// Package fingerprint derives display and tooling fingerprints of the
// server's host keys.
//
// A [Registry] is created once per server identity and regenerated whenever
// the host keys change. [Registry.Generate] walks the host key catalog, reads
// each public key from a [hostkeys.KeyStore], takes its SSH wire encoding and
// hashes it with MD5, SHA-1 and SHA-256. Every digest is kept in two forms:
//
//   - Hex: uppercase, two digits per byte, bytes joined by ":", with a line
//     break after every tenth separator so the value wraps in narrow UIs.
//   - Base64: standard alphabet without padding, the form printed by
//     ssh-keygen -l for SHA-256.
//
// # Failure isolation
//
// An algorithm whose key is missing, unreadable, unparsable, or whose digest
// cannot be computed is recorded as absent in the snapshot together with a
// [*KeyUnavailableError]. Other algorithms are processed regardless, and
// Generate never returns an error.
//
// # Publication
//
// Each Generate call builds a complete [Snapshot] and publishes it with one
// atomic pointer store. Readers see either the previous snapshot or the new
// one, never a mix.
package fingerprint
