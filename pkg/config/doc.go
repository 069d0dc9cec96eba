// Package config loads the server options and the imposter files given at
// startup.
//
// Server options come from three layers, later ones winning:
//
//   - built-in defaults (see Default)
//   - an optional YAML options file
//   - command-line flags that were explicitly set
//
// The merged result is validated before use:
//
//	opts, err := config.Load("imposterd.yaml", cmd.Flags())
//	if err != nil {
//	    return err
//	}
//	policy, err := opts.Policy()
//
// Imposter files hold the same payloads the management API accepts, as JSON
// or YAML, wrapped in an "imposters" array:
//
//	imposters:
//	  - protocol: http
//	    port: 4545
//	    stubs:
//	      - responses:
//	          - is: {statusCode: 204}
package config
