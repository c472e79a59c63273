package service

import (
	"context"
	"testing"
	"time"

	"mycard/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseSuccess(t *testing.T) {
	env := newFakeEnv()
	sink := &fakeAudit{}
	svc := newTestCouponService(env, sink)
	env.setBalance(1, 10000)

	// couponID=1 单价 4000，兑换 2 张
	result, err := svc.Purchase(context.Background(), &PurchaseRequest{UserID: 1, CouponID: 1, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(8000), result.DeductedPoints)
	assert.Equal(t, int64(2), result.Quantity)
	assert.Equal(t, int64(2000), env.balanceOf(1))

	// 券、扣减、流水同事务落库
	require.Len(t, env.coupons, 2)
	for _, coupon := range env.coupons {
		assert.Equal(t, int64(1), coupon.UserID)
		assert.Equal(t, int64(1), coupon.CouponID)
		assert.Equal(t, model.CouponStatusAvailable, coupon.Status)
		// 有效期一年
		assert.WithinDuration(t, coupon.PurchasedAt.AddDate(1, 0, 0), coupon.ValidUntil, time.Second)
	}

	require.Len(t, env.ledger, 1)
	entry := env.ledger[0]
	assert.Equal(t, model.LedgerTypeSpend, entry.EntryType)
	assert.Equal(t, int64(-8000), entry.Amount)
	assert.Equal(t, int64(2000), entry.BalanceAfter)
	assert.Equal(t, model.ReferenceTypeCoupon, entry.ReferenceType)
	assert.Equal(t, int64(1), entry.ReferenceID)

	assert.Equal(t, 1, sink.count())
}

func TestPurchaseUnknownCoupon(t *testing.T) {
	env := newFakeEnv()
	svc := newTestCouponService(env, &fakeAudit{})
	env.setBalance(1, 100000)

	_, err := svc.Purchase(context.Background(), &PurchaseRequest{UserID: 1, CouponID: 999, Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidCoupon)
	assert.Equal(t, int64(100000), env.balanceOf(1))
}

func TestPurchaseInsufficientBalance(t *testing.T) {
	env := newFakeEnv()
	svc := newTestCouponService(env, &fakeAudit{})
	env.setBalance(1, 3999)

	_, err := svc.Purchase(context.Background(), &PurchaseRequest{UserID: 1, CouponID: 1, Quantity: 1})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(3999), env.balanceOf(1))
	assert.Empty(t, env.coupons)
	assert.Empty(t, env.ledger)
}

func TestPurchaseInvalidQuantity(t *testing.T) {
	env := newFakeEnv()
	svc := newTestCouponService(env, &fakeAudit{})

	_, err := svc.Purchase(context.Background(), &PurchaseRequest{UserID: 1, CouponID: 1, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestPurchaseRollbackOnLedgerFailure(t *testing.T) {
	env := newFakeEnv()
	sink := &fakeAudit{}
	svc := newTestCouponService(env, sink)
	env.setBalance(1, 10000)
	env.ledgerErr = errInjected

	_, err := svc.Purchase(context.Background(), &PurchaseRequest{UserID: 1, CouponID: 1, Quantity: 1})
	require.Error(t, err)

	// 流水失败时已创建的券和扣减一并回滚
	assert.Equal(t, int64(10000), env.balanceOf(1))
	assert.Empty(t, env.coupons)
	assert.Equal(t, 0, sink.count())
}

func TestListMyCoupons(t *testing.T) {
	env := newFakeEnv()
	svc := newTestCouponService(env, &fakeAudit{})
	env.setBalance(1, 100000)

	_, err := svc.Purchase(context.Background(), &PurchaseRequest{UserID: 1, CouponID: 1, Quantity: 3})
	require.NoError(t, err)

	coupons, total, err := svc.ListMyCoupons(context.Background(), 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, coupons, 2)

	// 其他用户看不到
	_, total, err = svc.ListMyCoupons(context.Background(), 2, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}
