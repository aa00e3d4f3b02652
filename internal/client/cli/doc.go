// Package cli is the scanvault command-line client.
//
// Every command loads the TOML config, opens the outbox and the local
// library, and works against them. Capturing never touches the network;
// drain, status, retry and refresh talk to the server with the token saved
// by login.
package cli
