package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreeEligible(t *testing.T) {
	snap := Snapshot{"coffee": 2, "bakery": 0}

	assert.True(t, FreeEligible("coffee", snap))
	assert.False(t, FreeEligible("bakery", snap), "exhausted allocation")
	assert.False(t, FreeEligible("merch", snap), "no allocation at all")
}

func TestPlanFreeUnits(t *testing.T) {
	tests := []struct {
		name  string
		lines []LineRequest
		snap  Snapshot
		want  map[string]int
	}{
		{
			name: "line capped by its own quantity",
			lines: []LineRequest{
				{ProductID: "p1", CategoryID: "coffee", Quantity: 2},
			},
			snap: Snapshot{"coffee": 5},
			want: map[string]int{"p1": 2},
		},
		{
			name: "line capped by allocation",
			lines: []LineRequest{
				{ProductID: "p1", CategoryID: "coffee", Quantity: 5},
			},
			snap: Snapshot{"coffee": 2},
			want: map[string]int{"p1": 2},
		},
		{
			name: "lines share one category pool in line order",
			lines: []LineRequest{
				{ProductID: "p1", CategoryID: "coffee", Quantity: 2},
				{ProductID: "p2", CategoryID: "coffee", Quantity: 2},
			},
			snap: Snapshot{"coffee": 3},
			want: map[string]int{"p1": 2, "p2": 1},
		},
		{
			name: "categories draw independently",
			lines: []LineRequest{
				{ProductID: "p1", CategoryID: "coffee", Quantity: 1},
				{ProductID: "p2", CategoryID: "bakery", Quantity: 1},
			},
			snap: Snapshot{"coffee": 1, "bakery": 1},
			want: map[string]int{"p1": 1, "p2": 1},
		},
		{
			name: "no allocation yields empty plan",
			lines: []LineRequest{
				{ProductID: "p1", CategoryID: "merch", Quantity: 3},
			},
			snap: Snapshot{"coffee": 4},
			want: map[string]int{},
		},
		{
			name:  "empty cart",
			lines: nil,
			snap:  Snapshot{"coffee": 4},
			want:  map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanFreeUnits(tt.lines, tt.snap)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanFreeUnitsDoesNotMutateSnapshot(t *testing.T) {
	snap := Snapshot{"coffee": 3}
	PlanFreeUnits([]LineRequest{{ProductID: "p1", CategoryID: "coffee", Quantity: 2}}, snap)
	assert.Equal(t, 3, snap["coffee"])
}
