package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mycard/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	entries []*model.AuditLog
	err     error
}

func (f *fakeStore) Create(ctx context.Context, entry *model.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakePublisher) publish(topic, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, topic)
	return f.err
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestRecorder(store *fakeStore, pub *fakePublisher, bufSize int) *Recorder {
	return &Recorder{
		store:   store,
		topic:   "audit-log",
		publish: pub.publish,
		ch:      make(chan *model.AuditLog, bufSize),
	}
}

func TestRecorderPersistsAndPublishes(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	recorder := newTestRecorder(store, pub, 16)

	recorder.Record(1, model.AuditActionCreate, "PointWithdrawal", 10, "积分转换申请")
	recorder.Record(1, model.AuditActionCreate, "CouponPurchase", 2, "优惠券兑换")
	recorder.Record(2, model.AuditActionUpdate, "PointBalance", 2, "积分调整")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		recorder.Start(ctx)
		close(done)
	}()

	// 退出前会把通道里剩余的事件全部写完
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("审计任务没有退出")
	}

	require.Equal(t, 3, store.count())
	assert.Equal(t, 3, pub.count())
	assert.Equal(t, int64(1), store.entries[0].UserID)
	assert.Equal(t, "PointWithdrawal", store.entries[0].ResourceType)
}

func TestRecordNeverBlocksWhenFull(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	recorder := newTestRecorder(store, pub, 1)

	// 没有消费者，第二条起写满丢弃，Record 必须立刻返回
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			recorder.Record(1, model.AuditActionCreate, "PointWithdrawal", int64(i), "事件")
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Record 阻塞了调用方")
	}
	assert.Equal(t, 1, len(recorder.ch))
}

func TestStoreFailureDoesNotStopPublish(t *testing.T) {
	store := &fakeStore{err: errors.New("数据库不可用")}
	pub := &fakePublisher{}
	recorder := newTestRecorder(store, pub, 16)

	// 落库失败只记日志，事件照常发 Kafka
	recorder.persist(&model.AuditLog{UserID: 1, ActionType: model.AuditActionCreate, ResourceType: "PointWithdrawal", ResourceID: 1})

	assert.Equal(t, 0, store.count())
	assert.Equal(t, 1, pub.count())
}

func TestPublishFailureOnlyLogged(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{err: errors.New("broker 不可达")}
	recorder := newTestRecorder(store, pub, 16)

	// 发送失败不影响落库结果，也不会 panic
	recorder.persist(&model.AuditLog{UserID: 1, ActionType: model.AuditActionCreate, ResourceType: "PointWithdrawal", ResourceID: 1})

	assert.Equal(t, 1, store.count())
	assert.Equal(t, 1, pub.count())
}
