// Package config loads interceptd configuration.
//
// ServerConfig holds settings for the interceptor server. Values are merged
// with the following precedence:
//  1. Command-line flags (highest priority)
//  2. Environment variables (INTERCEPTD_*)
//  3. Local config file (.interceptdrc.yaml in the current directory)
//  4. Global config file (~/.config/interceptd/config.yaml)
//  5. Default values (lowest priority)
//
// HandlerFile is a declarative list of handlers in YAML. Files are checked
// against an embedded JSON schema, then semantically, and can be applied to
// any interceptor, local or remote:
//
//	version: "1"
//	handlers:
//	  - method: GET
//	    path: /users/:id
//	    with:
//	      - headers: {accept: application/json}
//	    times: {exactly: 1}
//	    respond:
//	      status: 200
//	      json: {id: 1, name: ada}
package config
