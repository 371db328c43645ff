// Package storage holds the data a node replicates: a set of refs, each
// mapping a project URN to its current head.
//
// A Store also remembers which refs were last announced to the network, so the
// announce subroutine only broadcasts what changed since the previous run.
// Three backends are provided: an in-memory store for tests and ephemeral
// nodes, a Badger store and a BoltDB store.
package storage
