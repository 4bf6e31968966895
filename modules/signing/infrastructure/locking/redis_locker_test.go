package locking

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/ports"
)

type fakeRedis struct {
	redis.Scripter

	held     map[string]string
	setNXErr error
	released []string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{held: map[string]string{}} }

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if f.setNXErr != nil {
		return redis.NewBoolResult(false, f.setNXErr)
	}
	if _, ok := f.held[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.held[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	if f.held[keys[0]] != args[0] {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.held, keys[0])
	f.released = append(f.released, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	client := newFakeRedis()
	l := NewRedisLocker(client, RedisLockerConfig{WaitTimeout: 30 * time.Millisecond, RetryInterval: 5 * time.Millisecond})

	unlock, err := l.Lock(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, ok := client.held["signflow:lock:c-1"]; !ok {
		t.Fatalf("held=%v", client.held)
	}

	if _, err := l.Lock(context.Background(), "c-1"); !errors.Is(err, ports.ErrLockNotAcquired) {
		t.Fatalf("second lock err=%v", err)
	}

	unlock()
	if !slices.Equal(client.released, []string{"signflow:lock:c-1"}) {
		t.Fatalf("released=%v", client.released)
	}

	unlock2, err := l.Lock(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	unlock2()
}

func TestRedisLocker_Errors(t *testing.T) {
	client := newFakeRedis()
	client.setNXErr = errors.New("connection refused")
	l := NewRedisLocker(client, RedisLockerConfig{})

	if _, err := l.Lock(context.Background(), "c-1"); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("err=%v", err)
	}

	client.setNXErr = nil
	client.held["signflow:lock:c-2"] = "someone-else"
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Lock(ctx, "c-2"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}
