// Package billing is the mocked billing / change-of-ownership collaborator.
// Every tool reads its CSV inputs and reports row counts; no payment logic.
package billing

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/agentis-health/discharge-orchestrator/internal/jsonrpc"
)

var Tools = []jsonrpc.ToolInfo{
	{Name: "coo.ownership", Input: map[string]any{}, Output: map[string]any{"type": "ownership_summary"}},
	{Name: "coo.bill-transfer", Input: map[string]any{}, Output: map[string]any{"type": "bill_transfer_summary"}},
	{Name: "coo.reset", Input: map[string]any{}, Output: map[string]any{"type": "reset_summary"}},
}

// Mock reads billing fixture CSVs out of a data directory.
type Mock struct {
	DataDir string
}

func NewMock(dataDir string) *Mock {
	return &Mock{DataDir: dataDir}
}

func (m *Mock) csvPath(name string) string {
	return filepath.Join(m.DataDir, name)
}

func (m *Mock) readCSV(name string) [][]string {
	f, err := os.Open(m.csvPath(name))
	if err != nil {
		return nil
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil || len(rows) < 2 {
		return nil
	}
	// Drop the header row.
	return rows[1:]
}

// RegisterOn wires the billing tools onto a JSON-RPC server.
func (m *Mock) RegisterOn(srv *jsonrpc.Server) {
	srv.Register("coo.ownership", func(params json.RawMessage) (any, error) {
		history := m.readCSV("coohistory.csv")
		return map[string]any{
			"tool": "coo.ownership",
			"output": map[string]any{
				"summary":      "Ownership change demo executed (mock)",
				"history_rows": len(history),
			},
		}, nil
	})
	srv.Register("coo.bill-transfer", func(params json.RawMessage) (any, error) {
		bills := m.readCSV("billing.csv")
		return map[string]any{
			"tool": "coo.bill-transfer",
			"output": map[string]any{
				"summary":      "Bill transfer demo executed (mock)",
				"billing_rows": len(bills),
			},
		}, nil
	})
	srv.Register("coo.reset", func(params json.RawMessage) (any, error) {
		files := []string{"coohistory.csv", "billing.csv"}
		existing := make([]string, 0, len(files))
		for _, f := range files {
			if _, err := os.Stat(m.csvPath(f)); err == nil {
				existing = append(existing, f)
			}
		}
		return map[string]any{
			"tool": "coo.reset",
			"output": map[string]any{
				"summary":        "CoO demo reset is a no-op (shared data directory)",
				"existing_files": existing,
			},
		}, nil
	})
}
