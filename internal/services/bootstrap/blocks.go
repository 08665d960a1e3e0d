package bootstrap

import (
	"fmt"
	"sort"

	"RegimeLab/internal/domain/models"
)

// Block is a maximal run of consecutive candles sharing one bucket. Returns
// are computed inside the block only, so the first one is always absent.
type Block struct {
	Bucket     int
	StartIndex int
	Candles    []models.Candle
	Returns    []models.OptFloat
}

// Len is the number of candles in the block.
func (b Block) Len() int { return len(b.Candles) }

// BuildBlocks splits candles into blocks by bucket. An absent bucket ends the
// current block and belongs to no block.
func BuildBlocks(candles []models.Candle, buckets []models.OptInt) ([]Block, error) {
	if len(candles) != len(buckets) {
		return nil, fmt.Errorf("candles (%d) and buckets (%d) differ in length: %w",
			len(candles), len(buckets), ErrInvalidArgument)
	}

	var blocks []Block
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		slice := make([]models.Candle, end-start)
		copy(slice, candles[start:end])
		blocks = append(blocks, Block{
			Bucket:     buckets[start].Value,
			StartIndex: start,
			Candles:    slice,
			Returns:    CalculateReturns(slice),
		})
		start = -1
	}

	for i, b := range buckets {
		switch {
		case !b.Valid:
			flush(i)
		case start >= 0 && buckets[start].Value == b.Value:
		default:
			flush(i)
			start = i
		}
	}
	flush(len(candles))
	return blocks, nil
}

// CountBlocksByBucket counts blocks per bucket.
func CountBlocksByBucket(blocks []Block) map[int]int {
	counts := make(map[int]int)
	for _, b := range blocks {
		counts[b.Bucket]++
	}
	return counts
}

// ShuffleBlocksByBucket returns a new block sequence with the same bucket at
// every position as blocks, where each slot holds a block drawn without
// replacement from a seeded shuffle of that bucket's blocks.
func ShuffleBlocksByBucket(blocks []Block, seed int64) []Block {
	groups := make(map[int][]Block)
	for _, b := range blocks {
		groups[b.Bucket] = append(groups[b.Bucket], b)
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	rng := NewMulberry32(seed)
	for _, k := range keys {
		Shuffle(groups[k], rng)
	}

	next := make(map[int]int, len(groups))
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = groups[b.Bucket][next[b.Bucket]]
		next[b.Bucket]++
	}
	return out
}

// CheckBucketCountsPreserved shuffles blocks with seed and compares the
// per-bucket block counts before and after.
func CheckBucketCountsPreserved(blocks []Block, seed int64) models.BucketCheck {
	before := CountBlocksByBucket(blocks)
	after := CountBlocksByBucket(ShuffleBlocksByBucket(blocks, seed))
	passed := len(before) == len(after)
	for k, v := range before {
		if after[k] != v {
			passed = false
		}
	}
	return models.BucketCheck{Passed: passed, OriginalCounts: before, ShuffledCounts: after}
}

func summarizeBlocks(blocks []Block) []models.BlockSummary {
	out := make([]models.BlockSummary, len(blocks))
	for i, b := range blocks {
		s := models.BlockSummary{Bucket: b.Bucket, Length: b.Len()}
		if n := b.Len(); n > 0 {
			s.StartDate = b.Candles[0].Date
			s.EndDate = b.Candles[n-1].Date
		}
		out[i] = s
	}
	return out
}
