package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentis-health/discharge-orchestrator/internal/domain"
)

// Action type discriminators used in reports and share summaries.
const (
	TypeTask    = "task"
	TypeMessage = "message"
)

// TaskAction proposes assigning a follow-up task to a practitioner or
// organization.
type TaskAction struct {
	OwnerRef     string `json:"owner_ref"`
	Description  string `json:"description"`
	DueTS        string `json:"due_ts"`
	PurposeOfUse string `json:"purpose_of_use"`
}

// MessageAction proposes sending patient information over a channel.
type MessageAction struct {
	Channel      string `json:"channel"`
	ToRef        string `json:"to_ref"`
	PurposeOfUse string `json:"purpose_of_use"`
	Content      string `json:"content"`
}

// Batch is the planner's proposal: ordered task and message actions.
// Proposals arrive as loose JSON from an LLM, so every entry is validated
// before any consent check runs.
type Batch struct {
	Tasks    []TaskAction    `json:"tasks"`
	Messages []MessageAction `json:"messages"`
}

// Empty reports whether the batch proposes no actions at all.
func (b Batch) Empty() bool {
	return len(b.Tasks) == 0 && len(b.Messages) == 0
}

// DecodeBatch parses a planner proposal. A missing or null payload yields an
// empty batch; a payload that is not an object is rejected.
func DecodeBatch(raw json.RawMessage) (Batch, error) {
	var b Batch
	if len(raw) == 0 || string(raw) == "null" {
		return b, nil
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		return Batch{}, fmt.Errorf("%w: proposal is not a tasks/messages object: %v", domain.ErrInvalidInput, err)
	}
	return b, nil
}

// Validate checks the required task fields. Malformed entries are rejected,
// not guessed at.
func (t TaskAction) Validate() error {
	var missing []string
	if t.OwnerRef == "" {
		missing = append(missing, "owner_ref")
	}
	if t.Description == "" {
		missing = append(missing, "description")
	}
	if t.DueTS == "" {
		missing = append(missing, "due_ts")
	}
	if t.PurposeOfUse == "" {
		missing = append(missing, "purpose_of_use")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: task missing %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks the required message fields.
func (m MessageAction) Validate() error {
	var missing []string
	if m.Channel == "" {
		missing = append(missing, "channel")
	}
	if m.ToRef == "" {
		missing = append(missing, "to_ref")
	}
	if m.PurposeOfUse == "" {
		missing = append(missing, "purpose_of_use")
	}
	if m.Content == "" {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: message missing %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}
