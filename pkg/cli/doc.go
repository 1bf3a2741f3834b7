// Package cli provides the command-line interface for interceptd.
//
// Commands:
//   - serve: Run the interceptor server in the foreground
//   - exec: Run a command against an ephemeral session declared from a handler file
//   - validate: Check handler files
//   - token create: Mint a session token
//   - version: Show interceptd version
package cli
