// Package clients holds the trigger service's collaborator clients: the
// JSON-RPC stdio mock servers and the (mocked) task store and messenger.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/agentis-health/discharge-orchestrator/internal/jsonrpc"
)

type rpcClient interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Close() error
}

// Conn caches one long-lived mock-server subprocess per collaborator. The
// first call dials; subsequent calls reuse the process, which keeps its
// in-memory state (audit trails, write sequences) alive across requests. A
// transport failure drops the cached client so the next call redials.
type Conn struct {
	Command string

	dial func(command string) (rpcClient, error)

	mu     sync.Mutex
	client rpcClient
}

// NewConn prepares a lazily-dialed connection to the given mock command. The
// subprocess outlives individual call contexts and is torn down by Close.
func NewConn(command string) *Conn {
	return &Conn{
		Command: command,
		dial: func(command string) (rpcClient, error) {
			return jsonrpc.Dial(context.Background(), command)
		},
	}
}

// Call performs one JSON-RPC call over the cached connection, dialing it
// first if needed. The underlying client serializes concurrent calls.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.client == nil {
		client, err := c.dial(c.Command)
		if err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		c.client = client
	}
	client := c.client
	c.mu.Unlock()

	result, err := client.Call(ctx, method, params)
	if err != nil {
		// An RPC error means the server answered; the process is fine. Any
		// other failure means the transport broke, so drop the cached client
		// and let the next call redial.
		var rpcErr *jsonrpc.Error
		if !errors.As(err, &rpcErr) {
			c.mu.Lock()
			if c.client == client {
				_ = client.Close()
				c.client = nil
			}
			c.mu.Unlock()
		}
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return result, nil
}

// Close shuts the cached subprocess down, if one was dialed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// EMRClient talks to the EMR mock.
type EMRClient struct {
	Conn *Conn
}

func (c EMRClient) DischargeEvent(ctx context.Context, patientID string) (map[string]any, error) {
	return callMap(ctx, c.Conn, "epic.discharge_event.get", map[string]any{"patient_id": patientID})
}

func (c EMRClient) PatientBundle(ctx context.Context, patientID string) (map[string]any, error) {
	return callMap(ctx, c.Conn, "epic.patient_bundle.get", map[string]any{"patient_id": patientID})
}

func (c EMRClient) SearchResources(ctx context.Context, resourceType, patientID string) (map[string]any, error) {
	return callMap(ctx, c.Conn, "epic.search", map[string]any{
		"resource_type": resourceType,
		"patient_id":    patientID,
	})
}

func (c EMRClient) CreateResource(ctx context.Context, resourceType string, resource map[string]any) (map[string]any, error) {
	return callMap(ctx, c.Conn, "epic.fhir_write_back.create", map[string]any{
		"resource_type": resourceType,
		"resource_json": resource,
	})
}

func (c EMRClient) InbasketAlert(ctx context.Context, patientID, subject, body, priority string) (map[string]any, error) {
	return callMap(ctx, c.Conn, "epic.inbasket.alert", map[string]any{
		"patient_id": patientID,
		"subject":    subject,
		"body":       body,
		"priority":   priority,
	})
}

func (c EMRClient) SearchAuditTrail(ctx context.Context, actorRef, entityRef, action string) (map[string]any, error) {
	return callMap(ctx, c.Conn, "epic.audit.search", map[string]any{
		"actor_ref":  actorRef,
		"entity_ref": entityRef,
		"action":     action,
	})
}

// DirectoryClient talks to the provider-directory mock.
type DirectoryClient struct {
	Conn *Conn
}

func (c DirectoryClient) SearchProviders(ctx context.Context, patientID, location string, roles []string) (map[string]any, error) {
	return callMap(ctx, c.Conn, "hca.directory.search_providers", map[string]any{
		"patient_id":      patientID,
		"location":        location,
		"roles":           roles,
		"consent_context": map[string]any{},
	})
}

// BillingClient talks to the billing/CoO mock.
type BillingClient struct {
	Conn *Conn
}

func (c BillingClient) Ownership(ctx context.Context) (map[string]any, error) {
	return callMap(ctx, c.Conn, "coo.ownership", map[string]any{})
}

func (c BillingClient) BillTransfer(ctx context.Context) (map[string]any, error) {
	return callMap(ctx, c.Conn, "coo.bill-transfer", map[string]any{})
}

func (c BillingClient) Reset(ctx context.Context) (map[string]any, error) {
	return callMap(ctx, c.Conn, "coo.reset", map[string]any{})
}

func callMap(ctx context.Context, conn *Conn, method string, params any) (map[string]any, error) {
	raw, err := conn.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: malformed result: %w", method, err)
	}
	return out, nil
}
