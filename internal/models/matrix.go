package models

// Unreachable is the cost assigned to pairs whose travel cost could not be
// determined. It is finite so path totals stay comparable.
const Unreachable int64 = 1_000_000_000

// CostMatrix holds travel costs in meters; cost[i][j] is the cost from i to j
type CostMatrix [][]int64

// NewCostMatrix allocates an n×n zero matrix
func NewCostMatrix(n int) CostMatrix {
	m := make(CostMatrix, n)
	for i := range m {
		m[i] = make([]int64, n)
	}
	return m
}

// Size returns the number of rows
func (m CostMatrix) Size() int {
	return len(m)
}

// PathCost sums transition costs along order
func (m CostMatrix) PathCost(order []int) int64 {
	var total int64
	for i := 1; i < len(order); i++ {
		total += m[order[i-1]][order[i]]
	}
	return total
}

// Tour is a visiting order over matrix indices.
// A closed tour returns to Order[0]; the return leg is included in Cost
// but the start index is not repeated.
type Tour struct {
	Order  []int `json:"order"`
	Cost   int64 `json:"cost"`
	Closed bool  `json:"closed"`
}
