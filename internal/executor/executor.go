package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentis-health/discharge-orchestrator/internal/audit"
	"github.com/agentis-health/discharge-orchestrator/internal/consent"
)

// Result statuses. created/queued count as allowed; denied and failed count
// as not shared.
const (
	StatusCreated = "created"
	StatusQueued  = "queued"
	StatusDenied  = "denied"
	StatusFailed  = "failed"
)

// Denial reasons produced by the executor itself (the engine's structured
// reasons pass through unchanged).
const (
	ReasonInvalidAction  = "invalid_action"
	ReasonDispatchFailed = "dispatch_failed"
)

// ExecutionResult pairs one proposed action with its outcome.
type ExecutionResult struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	ExternalID string `json:"-"`
}

// TaskOutcome and MessageOutcome echo the input alongside its result so the
// report stays self-describing for the UI layer.
type TaskOutcome struct {
	Input  TaskAction      `json:"input"`
	Result ExecutionResult `json:"result"`
}

type MessageOutcome struct {
	Input  MessageAction   `json:"input"`
	Result ExecutionResult `json:"result"`
}

// SharedItem is one entry of the share summary, tagged with its action type.
type SharedItem struct {
	Type         string `json:"type"`
	OwnerRef     string `json:"owner_ref,omitempty"`
	Description  string `json:"description,omitempty"`
	DueTS        string `json:"due_ts,omitempty"`
	ToRef        string `json:"to_ref,omitempty"`
	PurposeOfUse string `json:"purpose_of_use,omitempty"`
	Content      string `json:"content,omitempty"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
}

// ShareSummary groups every result into allowed and denied. Failed dispatches
// group under denied with reason dispatch_failed so nothing is dropped.
type ShareSummary struct {
	Allowed []SharedItem `json:"allowed"`
	Denied  []SharedItem `json:"denied"`
}

// Report is the full outcome of one batch execution.
type Report struct {
	Tasks    []TaskOutcome    `json:"tasks"`
	Messages []MessageOutcome `json:"messages"`
	Share    ShareSummary     `json:"share_result"`
}

// Checker is the consent gate required by the executor.
type Checker interface {
	Check(subjectRef, recipientRef, action, purposeOfUse string) consent.Decision
}

// TaskStore creates follow-up tasks in the downstream orchestration system.
type TaskStore interface {
	CreateTask(ctx context.Context, ownerRef, description, dueTS string) (string, error)
}

// Messenger dispatches messages over the downstream messaging channel.
type Messenger interface {
	SendMessage(ctx context.Context, channel, toRef, content string) (string, error)
}

// Executor applies the consent gate to a proposed batch and performs the
// permitted side effects. Actions are independent: one denial or dispatch
// failure never blocks the rest of the batch.
type Executor struct {
	checker  Checker
	tasks    TaskStore
	messages Messenger
	sink     audit.Sink
	log      zerolog.Logger
	now      func() time.Time
}

func New(checker Checker, tasks TaskStore, messages Messenger, sink audit.Sink, log zerolog.Logger) *Executor {
	if sink == nil {
		sink = audit.SinkFunc(func(context.Context, audit.Event) error { return nil })
	}
	return &Executor{
		checker:  checker,
		tasks:    tasks,
		messages: messages,
		sink:     sink,
		log:      log,
		now:      time.Now,
	}
}

// ExecuteBatch runs every action in the supplied order, exactly one consent
// check per action, and aggregates an allowed/denied report. Every input
// action appears exactly once in the summary.
func (e *Executor) ExecuteBatch(ctx context.Context, batch Batch, patientRef string) Report {
	report := Report{
		Tasks:    make([]TaskOutcome, 0, len(batch.Tasks)),
		Messages: make([]MessageOutcome, 0, len(batch.Messages)),
		Share: ShareSummary{
			Allowed: []SharedItem{},
			Denied:  []SharedItem{},
		},
	}

	for _, task := range batch.Tasks {
		result := e.executeTask(ctx, task, patientRef)
		report.Tasks = append(report.Tasks, TaskOutcome{Input: task, Result: result})

		item := SharedItem{
			Type:        TypeTask,
			OwnerRef:    task.OwnerRef,
			Description: task.Description,
			DueTS:       task.DueTS,
			Status:      result.Status,
		}
		if result.Status == StatusCreated {
			report.Share.Allowed = append(report.Share.Allowed, item)
		} else {
			item.Reason = result.Reason
			report.Share.Denied = append(report.Share.Denied, item)
		}
	}

	for _, msg := range batch.Messages {
		result := e.executeMessage(ctx, msg, patientRef)
		report.Messages = append(report.Messages, MessageOutcome{Input: msg, Result: result})

		item := SharedItem{
			Type:         TypeMessage,
			ToRef:        msg.ToRef,
			PurposeOfUse: msg.PurposeOfUse,
			Content:      msg.Content,
			Status:       result.Status,
		}
		if result.Status == StatusQueued {
			report.Share.Allowed = append(report.Share.Allowed, item)
		} else {
			item.Reason = result.Reason
			report.Share.Denied = append(report.Share.Denied, item)
		}
	}

	return report
}

func (e *Executor) executeTask(ctx context.Context, task TaskAction, patientRef string) ExecutionResult {
	if err := task.Validate(); err != nil {
		e.log.Warn().Err(err).Str("patient_ref", patientRef).Msg("rejected malformed task action")
		return ExecutionResult{Status: StatusDenied, Reason: ReasonInvalidAction}
	}

	decision := e.checker.Check(patientRef, task.OwnerRef, consent.ActionTaskAssignment, task.PurposeOfUse)
	e.recordCheck(ctx, patientRef, task.OwnerRef, consent.ActionTaskAssignment, task.PurposeOfUse, decision)

	if !decision.Allowed {
		e.recordOutcome(ctx, audit.KindTaskDenied, patientRef, task.OwnerRef, denialReason(decision), "")
		return ExecutionResult{Status: StatusDenied, Reason: denialReason(decision)}
	}

	taskID, err := e.tasks.CreateTask(ctx, task.OwnerRef, task.Description, task.DueTS)
	if err != nil {
		e.log.Error().Err(err).Str("owner_ref", task.OwnerRef).Msg("task creation failed after consent passed")
		e.recordOutcome(ctx, audit.KindTaskFailed, patientRef, task.OwnerRef, ReasonDispatchFailed, "")
		return ExecutionResult{Status: StatusFailed, Reason: ReasonDispatchFailed}
	}

	e.recordOutcome(ctx, audit.KindTaskCreated, patientRef, task.OwnerRef, "", taskID)
	return ExecutionResult{Status: StatusCreated, TaskID: taskID, ExternalID: taskID}
}

func (e *Executor) executeMessage(ctx context.Context, msg MessageAction, patientRef string) ExecutionResult {
	if err := msg.Validate(); err != nil {
		e.log.Warn().Err(err).Str("patient_ref", patientRef).Msg("rejected malformed message action")
		return ExecutionResult{Status: StatusDenied, Reason: ReasonInvalidAction}
	}

	decision := e.checker.Check(patientRef, msg.ToRef, consent.ActionShareSummary, msg.PurposeOfUse)
	e.recordCheck(ctx, patientRef, msg.ToRef, consent.ActionShareSummary, msg.PurposeOfUse, decision)

	if !decision.Allowed {
		e.recordOutcome(ctx, audit.KindMessageDenied, patientRef, msg.ToRef, denialReason(decision), "")
		return ExecutionResult{Status: StatusDenied, Reason: denialReason(decision)}
	}

	messageID, err := e.messages.SendMessage(ctx, msg.Channel, msg.ToRef, msg.Content)
	if err != nil {
		e.log.Error().Err(err).Str("to_ref", msg.ToRef).Msg("message dispatch failed after consent passed")
		e.recordOutcome(ctx, audit.KindMessageFailed, patientRef, msg.ToRef, ReasonDispatchFailed, "")
		return ExecutionResult{Status: StatusFailed, Reason: ReasonDispatchFailed}
	}

	e.recordOutcome(ctx, audit.KindMessageQueued, patientRef, msg.ToRef, "", messageID)
	return ExecutionResult{Status: StatusQueued, MessageID: messageID, ExternalID: messageID}
}

func denialReason(d consent.Decision) string {
	if d.Reason == "" {
		return consent.ReasonConsentDenied
	}
	return d.Reason
}

func (e *Executor) recordCheck(ctx context.Context, patientRef, recipientRef, action, purpose string, d consent.Decision) {
	allowed := d.Allowed
	event := audit.Event{
		Time:         e.now().UTC(),
		Kind:         audit.KindConsentCheck,
		PatientRef:   patientRef,
		RecipientRef: recipientRef,
		Action:       action,
		PurposeOfUse: purpose,
		Allowed:      &allowed,
		Reason:       d.Reason,
		PolicyRefs:   d.PolicyRefs,
	}
	if err := e.sink.Record(ctx, event); err != nil {
		e.log.Warn().Err(err).Msg("audit sink record failed")
	}
}

func (e *Executor) recordOutcome(ctx context.Context, kind, patientRef, recipientRef, reason, externalID string) {
	event := audit.Event{
		Time:         e.now().UTC(),
		Kind:         kind,
		PatientRef:   patientRef,
		RecipientRef: recipientRef,
		Reason:       reason,
		ExternalID:   externalID,
	}
	if err := e.sink.Record(ctx, event); err != nil {
		e.log.Warn().Err(err).Msg("audit sink record failed")
	}
}
