// Package detector finds RAW files that have finished transferring into the
// watched directory.
//
// The echosounder host copies files over a CIFS share that delivers no
// change events, so readiness is inferred by polling: a file is emitted as
// ready only after its size and modification time have been unchanged for a
// configured number of consecutive polls spanning a minimum wall-clock
// duration. Each ready file is emitted exactly once; identities already in
// the processed ledger are seeded into the skip set at startup so a restart
// never re-emits them.
package detector
