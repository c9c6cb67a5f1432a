// Command fellegiholt flags erroneous fields in tabular survey data with the
// Fellegi-Holt method and optionally removes or replaces them.
//
// Usage:
//
//	fellegiholt run --config job.json [--metrics-backend prometheus] [-v]
//	fellegiholt validate --config job.json
//	fellegiholt compile --rules rules.yaml [--tags hard]
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
