package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"mycard/internal/config"
	"mycard/internal/model"
	"mycard/internal/repository"

	"gorm.io/gorm"
)

// 内存版依赖，满足 deps.go 里的窄接口
// fakeDB.Transaction 先快照再执行，出错时整体回滚，
// 用来验证"扣减+流水+单据"的原子性约定

type fakeEnv struct {
	mu   sync.Mutex // 保护下面的状态
	txMu sync.Mutex // 串行化事务，模拟行锁下的互斥

	balances    map[int64]int64
	ledger      []*model.PointLedger
	withdrawals []*model.PointWithdrawal
	outbox      []*model.OutboxMessage
	coupons     []*model.UserCoupon
	nextID      int64

	policy    *model.PointPolicy
	policyErr error
	accounts  []*model.UserBankAccount

	ledgerErr error // 注入流水写入失败
	outboxErr error // 注入发件箱写入失败
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		balances: make(map[int64]int64),
		policy: &model.PointPolicy{
			ID:             1,
			PolicyName:     "default",
			FeeRate:        0.025,
			DailyCapPoints: 50000,
			MinPoints:      1000,
			MaxPoints:      50000,
			Enabled:        true,
		},
	}
}

func (e *fakeEnv) addVerifiedAccount(userID int64) *model.UserBankAccount {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	account := &model.UserBankAccount{
		ID:            e.nextID,
		UserID:        userID,
		BankCode:      "004",
		BankName:      "国民银行",
		AccountMasked: "******1234",
		AccountHolder: "测试用户",
		IsVerified:    true,
		IsDefault:     true,
	}
	e.accounts = append(e.accounts, account)
	return account
}

func (e *fakeEnv) setBalance(userID, amount int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[userID] = amount
}

func (e *fakeEnv) balanceOf(userID int64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[userID]
}

// seedWithdrawal 预置一笔当日提现，用于当日限额测试
func (e *fakeEnv) seedWithdrawal(userID, points int64, status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.withdrawals = append(e.withdrawals, &model.PointWithdrawal{
		ID:           e.nextID,
		WithdrawalNo: fmt.Sprintf("WDTEST%08d", e.nextID),
		UserID:       userID,
		PointsAmount: points,
		Status:       status,
		CreatedAt:    time.Now(),
	})
}

type fakeSnapshot struct {
	balances    map[int64]int64
	ledger      []*model.PointLedger
	withdrawals []*model.PointWithdrawal
	outbox      []*model.OutboxMessage
	coupons     []*model.UserCoupon
	nextID      int64
}

func (e *fakeEnv) snapshot() fakeSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	balances := make(map[int64]int64, len(e.balances))
	for k, v := range e.balances {
		balances[k] = v
	}
	return fakeSnapshot{
		balances:    balances,
		ledger:      e.ledger,
		withdrawals: e.withdrawals,
		outbox:      e.outbox,
		coupons:     e.coupons,
		nextID:      e.nextID,
	}
}

func (e *fakeEnv) restore(s fakeSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances = s.balances
	e.ledger = s.ledger
	e.withdrawals = s.withdrawals
	e.outbox = s.outbox
	e.coupons = s.coupons
	e.nextID = s.nextID
}

// ---- txRunner ----

type fakeDB struct {
	env *fakeEnv
}

func (d *fakeDB) Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
	d.env.txMu.Lock()
	defer d.env.txMu.Unlock()

	snap := d.env.snapshot()
	if err := fc(nil); err != nil {
		d.env.restore(snap)
		return err
	}
	return nil
}

// ---- balanceStore ----

type fakeBalances struct {
	env *fakeEnv
}

func (f *fakeBalances) GetByUserID(ctx context.Context, userID int64) (*model.PointBalance, error) {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	balance, ok := f.env.balances[userID]
	if !ok {
		return nil, repository.ErrBalanceNotFound
	}
	return &model.PointBalance{UserID: userID, Balance: balance}, nil
}

func (f *fakeBalances) GetOrCreate(ctx context.Context, userID int64) (*model.PointBalance, error) {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	balance, ok := f.env.balances[userID]
	if !ok {
		f.env.balances[userID] = 0
		balance = 0
	}
	return &model.PointBalance{UserID: userID, Balance: balance}, nil
}

func (f *fakeBalances) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.PointBalance, error) {
	return f.GetByUserID(ctx, userID)
}

func (f *fakeBalances) Debit(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	if f.env.balances[userID] < amount {
		return repository.ErrBalanceNotEnough
	}
	f.env.balances[userID] -= amount
	return nil
}

func (f *fakeBalances) Credit(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	f.env.balances[userID] += amount
	return nil
}

// ---- ledgerRecorder ----

type fakeLedgers struct {
	env *fakeEnv
}

func (f *fakeLedgers) Create(ctx context.Context, tx *gorm.DB, entry *model.PointLedger) error {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	if f.env.ledgerErr != nil {
		return f.env.ledgerErr
	}
	f.env.nextID++
	entry.ID = f.env.nextID
	entry.CreatedAt = time.Now()
	f.env.ledger = append(f.env.ledger, entry)
	return nil
}

func (f *fakeLedgers) ListByUserID(ctx context.Context, userID int64, entryType string, page, pageSize int) ([]*model.PointLedger, int64, error) {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	var matched []*model.PointLedger
	for i := len(f.env.ledger) - 1; i >= 0; i-- {
		entry := f.env.ledger[i]
		if entry.UserID != userID {
			continue
		}
		if entryType != "" && entry.EntryType != entryType {
			continue
		}
		matched = append(matched, entry)
	}
	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (f *fakeLedgers) SumAmountByUserID(ctx context.Context, userID int64) (int64, error) {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	var sum int64
	for _, entry := range f.env.ledger {
		if entry.UserID == userID {
			sum += entry.Amount
		}
	}
	return sum, nil
}

// ---- withdrawalStore ----

type fakeWithdrawals struct {
	env *fakeEnv
}

func (f *fakeWithdrawals) Create(ctx context.Context, tx *gorm.DB, withdrawal *model.PointWithdrawal) error {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	f.env.nextID++
	withdrawal.ID = f.env.nextID
	withdrawal.CreatedAt = time.Now()
	f.env.withdrawals = append(f.env.withdrawals, withdrawal)
	return nil
}

func (f *fakeWithdrawals) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.PointWithdrawal, int64, error) {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	var matched []*model.PointWithdrawal
	for i := len(f.env.withdrawals) - 1; i >= 0; i-- {
		if f.env.withdrawals[i].UserID == userID {
			matched = append(matched, f.env.withdrawals[i])
		}
	}
	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (f *fakeWithdrawals) SumPointsSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	var sum int64
	for _, w := range f.env.withdrawals {
		if w.UserID != userID || w.Status == model.WithdrawalStatusRejected {
			continue
		}
		if w.CreatedAt.Before(since) {
			continue
		}
		sum += w.PointsAmount
	}
	return sum, nil
}

// ---- policyProvider ----

type fakePolicies struct {
	env *fakeEnv
}

func (f *fakePolicies) GetActive(ctx context.Context) (*model.PointPolicy, error) {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	if f.env.policyErr != nil {
		return nil, f.env.policyErr
	}
	if f.env.policy == nil || !f.env.policy.Enabled {
		return nil, repository.ErrPolicyNotFound
	}
	return f.env.policy, nil
}

// ---- accountDirectory ----

type fakeAccounts struct {
	env *fakeEnv
}

func (f *fakeAccounts) GetByIDAndUserID(ctx context.Context, id, userID int64) (*model.UserBankAccount, error) {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	for _, account := range f.env.accounts {
		if account.ID == id && account.UserID == userID {
			return account, nil
		}
	}
	return nil, repository.ErrBankAccountMissing
}

func (f *fakeAccounts) GetDefault(ctx context.Context, userID int64) (*model.UserBankAccount, error) {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	for _, account := range f.env.accounts {
		if account.UserID == userID && account.IsDefault {
			return account, nil
		}
	}
	return nil, repository.ErrBankAccountMissing
}

// ---- couponStore ----

type fakeCoupons struct {
	env *fakeEnv
}

func (f *fakeCoupons) CreateBatch(ctx context.Context, tx *gorm.DB, coupons []*model.UserCoupon) error {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	for _, coupon := range coupons {
		f.env.nextID++
		coupon.ID = f.env.nextID
		f.env.coupons = append(f.env.coupons, coupon)
	}
	return nil
}

func (f *fakeCoupons) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.UserCoupon, int64, error) {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	var matched []*model.UserCoupon
	for i := len(f.env.coupons) - 1; i >= 0; i-- {
		if f.env.coupons[i].UserID == userID {
			matched = append(matched, f.env.coupons[i])
		}
	}
	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// ---- outboxWriter ----

type fakeOutbox struct {
	env *fakeEnv
}

func (f *fakeOutbox) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	if f.env.outboxErr != nil {
		return f.env.outboxErr
	}
	f.env.nextID++
	msg.ID = f.env.nextID
	f.env.outbox = append(f.env.outbox, msg)
	return nil
}

// ---- auditSink ----

type auditRecord struct {
	userID       int64
	actionType   string
	resourceType string
	resourceID   int64
	description  string
}

type fakeAudit struct {
	mu      sync.Mutex
	records []auditRecord
}

func (f *fakeAudit) Record(userID int64, actionType, resourceType string, resourceID int64, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, auditRecord{userID, actionType, resourceType, resourceID, description})
}

func (f *fakeAudit) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// ---- userLocker ----

type fakeLocker struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: make(map[int64]*sync.Mutex)}
}

func (l *fakeLocker) Acquire(ctx context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	userMu, ok := l.locks[userID]
	if !ok {
		userMu = &sync.Mutex{}
		l.locks[userID] = userMu
	}
	l.mu.Unlock()

	userMu.Lock()
	return func() { userMu.Unlock() }, nil
}

// ---- 组装 ----

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				PointWithdrawal: "point-withdrawal-requested",
				AuditLog:        "audit-log",
			},
		},
	}
}

func newTestPointService(env *fakeEnv, sink *fakeAudit) *PointService {
	return &PointService{
		db:             &fakeDB{env: env},
		cfg:            testConfig(),
		locker:         newFakeLocker(),
		balanceRepo:    &fakeBalances{env: env},
		ledgerRepo:     &fakeLedgers{env: env},
		withdrawalRepo: &fakeWithdrawals{env: env},
		policyRepo:     &fakePolicies{env: env},
		bankRepo:       &fakeAccounts{env: env},
		outboxRepo:     &fakeOutbox{env: env},
		audit:          sink,
	}
}

func newTestCouponService(env *fakeEnv, sink *fakeAudit) *CouponService {
	return &CouponService{
		db:          &fakeDB{env: env},
		cfg:         testConfig(),
		locker:      newFakeLocker(),
		balanceRepo: &fakeBalances{env: env},
		ledgerRepo:  &fakeLedgers{env: env},
		couponRepo:  &fakeCoupons{env: env},
		audit:       sink,
	}
}

var errInjected = errors.New("注入的存储故障")
