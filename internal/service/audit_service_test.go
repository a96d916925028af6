package service

import (
	"context"
	"testing"
	"time"

	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestAuditService_Log_PersistsToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	done := make(chan *domain.AuditLog, 1)
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, log *domain.AuditLog) error {
			done <- log
			return nil
		},
	)

	svc.Log(context.Background(), &domain.AuditLog{
		Action:       domain.AuditActionSettle,
		ResourceType: "approval",
		ResourceID:   uuid.New().String(),
		Address:      testSender,
		IPAddress:    "127.0.0.1",
	})

	select {
	case got := <-done:
		assert.Equal(t, domain.AuditActionSettle, got.Action)
		assert.Equal(t, testSender, got.Address)
		assert.NotEqual(t, uuid.Nil, got.ID, "id is assigned")
		assert.False(t, got.CreatedAt.IsZero(), "timestamp is assigned")
	case <-time.After(2 * time.Second):
		t.Fatal("audit log not persisted in time")
	}
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	svc := NewAuditService(nil, newTestLogger())

	// Should not panic
	svc.Log(context.Background(), &domain.AuditLog{
		Action:       domain.AuditActionRegister,
		ResourceType: "wallet",
		IPAddress:    "127.0.0.1",
	})

	time.Sleep(50 * time.Millisecond) // let goroutine run
}
