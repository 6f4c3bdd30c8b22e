package schedule

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"dispatchline/internal/domain"
)

func TestPackLanesExample(t *testing.T) {
	layout := PackLanes([]domain.WorkOrder{
		order("o0", "w1", 0, 60),
		order("o1", "w1", 30, 90),
		order("o2", "w1", 80, 120),
	})
	assert.Equal(t, map[string]int{"o0": 0, "o1": 1, "o2": 0}, layout.Lanes)
	assert.Equal(t, 2, layout.LaneCount)
}

func TestPackLanesEmpty(t *testing.T) {
	layout := PackLanes(nil)
	assert.Empty(t, layout.Lanes)
	assert.Equal(t, 0, layout.LaneCount)
}

func TestPackLanesTouchingShareLane(t *testing.T) {
	layout := PackLanes([]domain.WorkOrder{
		order("a", "w1", 0, 60),
		order("b", "w1", 60, 120),
	})
	assert.Equal(t, 1, layout.LaneCount)
	assert.Equal(t, layout.Lanes["a"], layout.Lanes["b"])
}

func TestPackLanesByWorker(t *testing.T) {
	byWorker := PackLanesByWorker([]domain.WorkOrder{
		order("a", "w1", 0, 60),
		order("b", "w2", 0, 60),
		order("c", "w1", 30, 60),
	})
	assert.Equal(t, 2, byWorker["w1"].LaneCount)
	assert.Equal(t, 1, byWorker["w2"].LaneCount)
}

// maxConcurrent counts the largest number of orders open at any instant.
func maxConcurrent(orders []domain.WorkOrder) int {
	type edge struct {
		at    int64
		delta int
	}
	var edges []edge
	for _, o := range orders {
		edges = append(edges, edge{o.Start.UnixNano(), 1}, edge{o.End.UnixNano(), -1})
	}
	// ends sort before starts at the same instant: touching intervals are not concurrent
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at != edges[j].at {
			return edges[i].at < edges[j].at
		}
		return edges[i].delta < edges[j].delta
	})
	best, cur := 0, 0
	for _, e := range edges {
		cur += e.delta
		best = max(best, cur)
	}
	return best
}

func randomOrders(rng *rand.Rand) []domain.WorkOrder {
	n := rng.Intn(25)
	out := make([]domain.WorkOrder, n)
	for i := range out {
		start := rng.Intn(720)
		out[i] = order(orderID(i), "w1", start, start+rng.Intn(240)+1)
	}
	return out
}

// TestPackLanes_Invariants property-tests non-overlap within a lane and lane-count minimality.
func TestPackLanes_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 300; trial++ {
		orders := randomOrders(rng)
		layout := PackLanes(orders)

		assert.Len(t, layout.Lanes, len(orders), "trial %d: every order gets a lane", trial)
		for i := range orders {
			for j := i + 1; j < len(orders); j++ {
				a, b := orders[i], orders[j]
				if Overlaps(a.Start, a.End, b.Start, b.End) {
					assert.NotEqual(t, layout.Lanes[a.ID], layout.Lanes[b.ID],
						"trial %d: overlapping %s and %s share a lane", trial, a.ID, b.ID)
				}
			}
		}
		assert.Equal(t, maxConcurrent(orders), layout.LaneCount, "trial %d: lane count must be minimal", trial)
	}
}

// TestPackLanes_Deterministic property-tests that input order does not affect the layout.
func TestPackLanes_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 200; trial++ {
		orders := randomOrders(rng)
		// duplicate intervals exercise the id tie-break
		if len(orders) > 2 {
			orders[1].Start, orders[1].End = orders[0].Start, orders[0].End
		}
		want := PackLanes(orders)

		shuffled := append([]domain.WorkOrder(nil), orders...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, PackLanes(shuffled), "trial %d", trial)
	}
}
