// The billing/CoO mock speaks line-delimited JSON-RPC 2.0 over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/agentis-health/discharge-orchestrator/internal/billing"
	"github.com/agentis-health/discharge-orchestrator/internal/jsonrpc"
)

func main() {
	dataDir := os.Getenv("BILLING_DATA_DIR")
	if dataDir == "" {
		dataDir = "data/csv"
	}

	srv := jsonrpc.NewServer(billing.Tools)
	billing.NewMock(dataDir).RegisterOn(srv)

	if err := srv.Serve(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "billing-mock: %v\n", err)
		os.Exit(1)
	}
}
