// Package cmd implements the command-line interface of the Site-to-Site
// gateway. It provides commands for running a peer and for moving flow files
// between local directories and a remote port.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a peer serving in-memory ports
//   - port: Sends a directory to a remote port, receives from it or benchmarks it
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through an environment variable S2S_<FLAG>
// (e.g. S2S_PORT_UUID), read from the process environment or from .env and
// .env.local files in the working directory.
//
// See s2sgate -help for a list of all commands.
package cmd
