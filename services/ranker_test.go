package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnodedash/models"
)

func scored(pubkey string, score int) models.Node {
	return models.Node{RawNode: models.RawNode{Pubkey: pubkey}, HealthScore: score}
}

func TestRankNodes_StableDescending(t *testing.T) {
	input := []models.Node{
		scored("a", 50), scored("b", 90), scored("c", 50), scored("d", 70), scored("e", 50),
	}

	ranked := RankNodes(input)
	require.Len(t, ranked, 5)

	var order []string
	for _, n := range ranked {
		order = append(order, n.Pubkey)
	}
	assert.Equal(t, []string{"b", "d", "a", "c", "e"}, order)

	for i, n := range ranked {
		assert.Equal(t, i+1, n.Rank)
	}

	// input untouched
	assert.Equal(t, "a", input[0].Pubkey)
	assert.Zero(t, input[0].Rank)
}

func TestRankNodes_Percentiles(t *testing.T) {
	var input []models.Node
	for i := 0; i < 10; i++ {
		input = append(input, scored(string(rune('a'+i)), 100-i))
	}

	ranked := RankNodes(input)

	assert.Equal(t, 100.0, ranked[0].PercentileRank)
	assert.Equal(t, PercentileTop10, ranked[0].Percentile)
	assert.Equal(t, 90.0, ranked[1].PercentileRank)
	assert.Equal(t, PercentileTop10, ranked[1].Percentile)
	assert.Equal(t, PercentileTop25, ranked[2].Percentile) // 80
	assert.Equal(t, PercentileTop50, ranked[5].Percentile) // 50
	assert.Equal(t, PercentileBottom50, ranked[6].Percentile)
	assert.InDelta(t, 10.0, ranked[9].PercentileRank, 1e-9)
}

func TestRankNodes_RanksArePermutation(t *testing.T) {
	scores := []int{3, 3, 1, 99, 42, 42, 0, 100, 7}
	var input []models.Node
	for i, s := range scores {
		input = append(input, scored(string(rune('a'+i)), s))
	}

	ranked := RankNodes(input)
	seen := make(map[int]bool)
	for _, n := range ranked {
		assert.False(t, seen[n.Rank], "duplicate rank %d", n.Rank)
		seen[n.Rank] = true
		assert.GreaterOrEqual(t, n.Rank, 1)
		assert.LessOrEqual(t, n.Rank, len(scores))
	}
	assert.Len(t, seen, len(scores))
}

func TestRankNodes_Empty(t *testing.T) {
	assert.Empty(t, RankNodes(nil))

	one := RankNodes([]models.Node{scored("solo", 10)})
	assert.Equal(t, 1, one[0].Rank)
	assert.Equal(t, 100.0, one[0].PercentileRank)
}
