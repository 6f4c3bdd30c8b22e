package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchline/internal/domain"
)

func TestSummarizeCaps(t *testing.T) {
	rules := DefaultCapacityRules()

	day := Summarize(3, 3, 1, rules)
	assert.Equal(t, 6, day.SafeCap)
	assert.Equal(t, 7, day.StandardCap) // floor(7.5)
	assert.Equal(t, 9, day.MaxCap)
	assert.Equal(t, LevelSafe, day.Level)

	week := Summarize(0, 3, 7, rules)
	assert.Equal(t, 42, week.SafeCap)
	assert.Equal(t, 52, week.StandardCap) // floor(52.5)
	assert.Equal(t, 63, week.MaxCap)

	month := Summarize(10, 2, 31, rules)
	assert.Equal(t, 155, month.StandardCap)
}

func TestSummarizeLevels(t *testing.T) {
	rules := DefaultCapacityRules()
	// 4 workers * 1 day * 2.5 = 10
	assert.Equal(t, LevelSafe, Summarize(7, 4, 1, rules).Level)   // 0.7 is not above warn
	assert.Equal(t, LevelWarn, Summarize(8, 4, 1, rules).Level)   // 0.8
	assert.Equal(t, LevelWarn, Summarize(9, 4, 1, rules).Level)   // 0.9 is not above danger
	assert.Equal(t, LevelDanger, Summarize(10, 4, 1, rules).Level) // 1.0
}

func TestSummarizeAtStandardCapIsNotSafe(t *testing.T) {
	rules := DefaultCapacityRules()
	for workers := 1; workers <= 12; workers++ {
		for _, days := range []int{1, 7, 28, 30, 31} {
			std := Summarize(0, workers, days, rules).StandardCap
			c := Summarize(std, workers, days, rules)
			assert.Equal(t, 1.0, c.Utilization, "workers=%d days=%d", workers, days)
			assert.NotEqual(t, LevelSafe, c.Level)
		}
	}
}

func TestSummarizeZeroRoster(t *testing.T) {
	c := Summarize(0, 0, 1, DefaultCapacityRules())
	assert.Equal(t, 0, c.StandardCap)
	assert.Equal(t, 0.0, c.Utilization)
	assert.Equal(t, LevelSafe, c.Level)

	c = Summarize(2, 0, 1, DefaultCapacityRules())
	assert.Equal(t, LevelDanger, c.Level)
}

func TestQuota(t *testing.T) {
	c := domain.Contract{ID: "k1", MonthlyQuota: 4, ConsumedByMonth: map[string]int{"2024-05": 3}}
	q := Quota(c, "2024-05")
	assert.Equal(t, 3, q.Used)
	require.NotNil(t, q.Remaining)
	assert.Equal(t, 1, *q.Remaining)

	q = Quota(c, "2024-06")
	assert.Equal(t, 0, q.Used)
	assert.Equal(t, 4, *q.Remaining)

	c.ConsumedByMonth["2024-07"] = 9
	q = Quota(c, "2024-07")
	assert.Equal(t, 0, *q.Remaining, "remaining never goes negative")

	unbounded := domain.Contract{ID: "k2", ConsumedByMonth: map[string]int{"2024-05": 12}}
	q = Quota(unbounded, "2024-05")
	assert.Equal(t, 12, q.Used)
	assert.Nil(t, q.Remaining)
}
