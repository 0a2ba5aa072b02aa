// Package hostkeys describes the host key algorithms the server can present
// and where their key material lives.
//
// The catalog is closed: [All] returns every [Algorithm] in a fixed order and
// each entry carries its own public key reader and wire encoder. Callers never
// switch on the algorithm themselves.
//
// Key material is reached through a [KeyStore]. [DirStore] keeps one file per
// key in a directory (private keys 0600, public keys 0644, directory 0700).
// [DBStore] keeps keys in the host_keys table with the private half sealed by
// fernet.
//
// Public keys are accepted in authorized_keys form ("ssh-ed25519 AAAA..."),
// as a PEM "PUBLIC KEY" block, or as raw SSH wire bytes. A key whose type does
// not match the algorithm it was stored under is rejected with
// [ErrAlgorithmMismatch].
package hostkeys
