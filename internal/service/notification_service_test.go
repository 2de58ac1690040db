package service_test

import (
	"context"
	"testing"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/testutil"
)

func TestNotificationReadFlow(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	maker := testutil.Actor("maker", false, nil)
	admin := testutil.Actor("admin", true, nil)

	// 审批通过会给制单人发一条通知
	wo := createOrder(t, env, maker, fx, 100)
	if _, err := env.Services.WorkOrder.Approve(ctx, admin, wo.ID, "同意"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	count, err := env.Services.Notification.UnreadCount(ctx, maker.UserID)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 unread notification, got %d", count)
	}

	notices, total, err := env.Services.Notification.List(ctx, maker.UserID, true, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 notification, got %d", total)
	}

	// 别人的通知标不了已读
	if err := env.Services.Notification.MarkRead(ctx, "stranger", notices[0].ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for wrong recipient, got %v", err)
	}

	if err := env.Services.Notification.MarkRead(ctx, maker.UserID, notices[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := env.Services.Notification.MarkRead(ctx, maker.UserID, notices[0].ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found on second mark, got %v", err)
	}

	count, _ = env.Services.Notification.UnreadCount(ctx, maker.UserID)
	if count != 0 {
		t.Errorf("expected 0 unread after mark, got %d", count)
	}
}

func TestMarkAllRead(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	maker := testutil.Actor("maker", false, nil)
	admin := testutil.Actor("admin", true, nil)

	for i := 0; i < 2; i++ {
		wo := createOrder(t, env, maker, fx, 100)
		if _, err := env.Services.WorkOrder.Approve(ctx, admin, wo.ID, ""); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}

	n, err := env.Services.Notification.MarkAllRead(ctx, maker.UserID)
	if err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 marked, got %d", n)
	}
	count, _ := env.Services.Notification.UnreadCount(ctx, maker.UserID)
	if count != 0 {
		t.Errorf("expected 0 unread, got %d", count)
	}
}
