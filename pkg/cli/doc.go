// Package cli implements the imposterd command line: the start command
// that runs the management API, and version.
package cli
