// The EMR mock speaks line-delimited JSON-RPC 2.0 over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/agentis-health/discharge-orchestrator/internal/emr"
	"github.com/agentis-health/discharge-orchestrator/internal/jsonrpc"
)

func main() {
	srv := jsonrpc.NewServer(emr.Tools)
	emr.NewMock().RegisterOn(srv)

	if err := srv.Serve(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "emr-mock: %v\n", err)
		os.Exit(1)
	}
}
