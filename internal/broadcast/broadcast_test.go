package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockPublishFanOut(t *testing.T) {
	m := NewMock()
	defer m.Close()

	ctx := context.Background()
	sub1, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub1.Close()
	sub2, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub2.Close()

	if err := m.Publish(ctx, []byte("alert-1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i, sub := range []Subscription{sub1, sub2} {
		select {
		case got := <-sub.Messages():
			if string(got) != "alert-1" {
				t.Errorf("subscriber %d got %q, want alert-1", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the payload", i)
		}
	}
}

func TestMockCloseReleasesSubscription(t *testing.T) {
	m := NewMock()
	defer m.Close()

	sub, err := m.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if m.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", m.SubscriberCount())
	}

	sub.Close()
	sub.Close() // idempotent

	if m.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount after Close = %d, want 0", m.SubscriberCount())
	}

	if _, ok := <-sub.Messages(); ok {
		t.Error("Messages channel should be closed after Close")
	}
}

func TestMockPublishAfterSubscriberLeft(t *testing.T) {
	m := NewMock()
	defer m.Close()

	sub, _ := m.Subscribe(context.Background())
	sub.Close()

	if err := m.Publish(context.Background(), []byte("late")); err != nil {
		t.Errorf("publish with no subscribers should succeed, got %v", err)
	}
}

func TestMockFailPublishWith(t *testing.T) {
	m := NewMock()
	defer m.Close()

	wantErr := errors.New("redis down")
	m.FailPublishWith(wantErr)

	if err := m.Publish(context.Background(), []byte("x")); !errors.Is(err, wantErr) {
		t.Errorf("Publish error = %v, want injected error", err)
	}
}

func TestMockClosed(t *testing.T) {
	m := NewMock()
	sub, _ := m.Subscribe(context.Background())
	m.Close()

	if err := m.Publish(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if _, err := m.Subscribe(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
	if _, ok := <-sub.Messages(); ok {
		t.Error("subscription channel should be closed after channel Close")
	}
}
