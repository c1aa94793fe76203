package retrieval

// PackOptions bounds the context handed to the model.
type PackOptions struct {
	TokenBudget    int
	ReservedTokens int
	MaxChunks      int
	MinChunks      int
}

// DefaultPackOptions mirrors the retrieval defaults in configs/config.yaml.
func DefaultPackOptions() PackOptions {
	return PackOptions{TokenBudget: 4000, ReservedTokens: 1000, MaxChunks: 5, MinChunks: 2}
}

func (o PackOptions) normalized() PackOptions {
	if o.MaxChunks <= 0 {
		o.MaxChunks = 5
	}
	if o.MinChunks < 0 {
		o.MinChunks = 0
	}
	if o.MinChunks > o.MaxChunks {
		o.MinChunks = o.MaxChunks
	}
	return o
}

// Pack walks ranked (best first) and greedily accepts chunks whose estimated
// tokens still fit in TokenBudget-ReservedTokens, up to MaxChunks. If fewer than
// min(MinChunks, len(ranked)) were accepted, the best skipped chunks are added
// until that floor is met, even over budget, so any relevant chunk yields context.
//
// Packing is greedy by score, not a knapsack optimum.
func Pack(ranked []ScoredChunk, opts PackOptions) []ScoredChunk {
	opts = opts.normalized()
	available := opts.TokenBudget - opts.ReservedTokens

	accepted := make([]bool, len(ranked))
	count, total := 0, 0
	for i, c := range ranked {
		if count >= opts.MaxChunks {
			break
		}
		tokens := EstimateTokens(c.Content)
		if total+tokens > available {
			continue
		}
		accepted[i] = true
		count++
		total += tokens
	}

	floor := opts.MinChunks
	if floor > len(ranked) {
		floor = len(ranked)
	}
	if count < floor {
		for i := range ranked {
			if count >= floor {
				break
			}
			if !accepted[i] {
				accepted[i] = true
				count++
			}
		}
	}

	packed := make([]ScoredChunk, 0, count)
	for i, ok := range accepted {
		if ok {
			packed = append(packed, ranked[i])
		}
	}
	return packed
}

// TotalTokens sums the estimated tokens of chunks.
func TotalTokens(chunks []ScoredChunk) int {
	total := 0
	for _, c := range chunks {
		total += EstimateTokens(c.Content)
	}
	return total
}
