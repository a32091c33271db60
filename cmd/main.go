package main

import (
	"fmt"
	"os"
)

// zkemail - CLI tool and API service for turning DKIM-signed emails
// into zero-knowledge circuit inputs
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
