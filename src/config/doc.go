// Package config defines the configuration for a runstate node.
//
// The CLI and embedding Go code both go through the Config object defined in
// this package. On top of these options, a node relies on a data directory,
// defined by Config.DataDir, where it expects to find a few additional files:
//
//  priv_key      // a plain text file containing the raw private key (cf. runstate keygen).
//  peers.json    // (optional) a JSON file listing the peers to dial on start.
//  runstate.toml // (optional) configuration file read by the CLI.
package config
