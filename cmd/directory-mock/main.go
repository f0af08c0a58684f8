// The provider-directory mock speaks line-delimited JSON-RPC 2.0 over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/agentis-health/discharge-orchestrator/internal/directory"
	"github.com/agentis-health/discharge-orchestrator/internal/jsonrpc"
)

func main() {
	srv := jsonrpc.NewServer(directory.Tools)
	directory.RegisterOn(srv)

	if err := srv.Serve(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "directory-mock: %v\n", err)
		os.Exit(1)
	}
}
