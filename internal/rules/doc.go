// Package rules loads the external configuration the policy engine
// consumes: YAML rule documents (validated against an embedded CUE schema),
// .vsi signal-number mappings, and initial-state files.
//
// Loading is the fatal-error boundary: everything that can be rejected is
// rejected here, with file positions where available. Past this package the
// engine assumes well-formed inputs.
package rules
