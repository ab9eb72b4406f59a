// Command reverse-proxy forwards requests to a fixed table of upstream
// services and optionally rewrites textual responses.
//
// Usage:
//
//	# Serve with the built-in route table
//	reverse-proxy serve
//
//	# Serve with a configuration file
//	reverse-proxy serve --config configs/proxy.yaml
//
//	# Run one request through the pipeline and print the result
//	reverse-proxy invoke --method GET --path /google --title "Proxied"
//
//	# Check a configuration file
//	reverse-proxy validate --config configs/proxy.yaml
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
