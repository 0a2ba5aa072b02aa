// Package audit records security-relevant events of the host core.
//
// Events are written to the audit_logs table and echoed to the standard
// logger under the [audit] prefix.
//
// # Event Types
//
//   - [EventFingerprintsGenerated]: a registry generation pass finished.
//   - [EventFingerprintChanged]: a host key's SHA-256 fingerprint differs from
//     the previous pass.
//   - [EventKeyAdded] / [EventKeyRemoved]: an algorithm gained or lost its key.
//   - [EventKeyAbsent]: an algorithm had no usable key during a pass.
//   - [EventKeysImported]: key pairs were copied between stores.
//   - [EventPathClamped]: a client path tried to climb above the virtual root.
//
// Components depend on the [Recorder] interface so that tests and callers
// without a database can pass nil or a fake.
package audit
