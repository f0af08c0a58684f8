package clients

import (
	"context"

	"github.com/google/uuid"
)

// MockTaskStore stands in for the downstream task-orchestration system. It
// assigns opaque task ids and never fails.
type MockTaskStore struct{}

func (MockTaskStore) CreateTask(_ context.Context, _, _, _ string) (string, error) {
	return "task-" + uuid.New().String()[:8], nil
}

// MockMessenger stands in for the downstream messaging channel.
type MockMessenger struct{}

func (MockMessenger) SendMessage(_ context.Context, _, _, _ string) (string, error) {
	return "msg-" + uuid.New().String()[:8], nil
}
