// Package cli implements the mockidp command-line interface.
//
// Commands:
//   - serve:   start the identity provider in the foreground
//   - init:    create a starter configuration file (optionally interactive)
//   - version: print build information
package cli
