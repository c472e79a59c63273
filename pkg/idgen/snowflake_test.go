package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIDUnique(t *testing.T) {
	Init(1)

	const n = 10000
	seen := make(map[int64]struct{}, n)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/4; j++ {
				id := NextID()
				mu.Lock()
				_, dup := seen[id]
				assert.False(t, dup, "生成了重复ID: %d", id)
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestNextIDMonotonic(t *testing.T) {
	Init(1)

	prev := NextID()
	for i := 0; i < 1000; i++ {
		id := NextID()
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestGenerateNos(t *testing.T) {
	Init(1)

	wdNo := GenerateWithdrawalNo()
	assert.True(t, strings.HasPrefix(wdNo, "WD"))
	// WD + 14位时间戳 + 8位序列
	assert.Len(t, wdNo, 24)

	lgrNo := GenerateLedgerNo()
	assert.True(t, strings.HasPrefix(lgrNo, "LGR"))
	assert.Len(t, lgrNo, 25)

	assert.NotEqual(t, GenerateWithdrawalNo(), GenerateWithdrawalNo())
}
