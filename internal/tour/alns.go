package tour

import (
	"math"
	"math/rand"
	"slices"
	"time"

	"droc/internal/metrics"
)

// Destroy and repair operators, indexed into the weight vectors.
const (
	removeRandom = iota
	removeShaw
)

const (
	insertGreedy = iota
	insertRegret
)

// searchStats counts what one adaptive search did.
type searchStats struct {
	Iterations     int
	Improvements   int
	AcceptedWorse  int
	RemovalSelects [2]int // random, shaw
	InsertSelects  [2]int // greedy, regret2
}

func (st searchStats) observe() {
	for op, n := range map[string]int{
		"remove_random":  st.RemovalSelects[removeRandom],
		"remove_shaw":    st.RemovalSelects[removeShaw],
		"insert_greedy":  st.InsertSelects[insertGreedy],
		"insert_regret2": st.InsertSelects[insertRegret],
	} {
		if n > 0 {
			metrics.OracleSearch.WithLabelValues(op).Add(float64(n))
		}
	}
}

// alns improves the closed tour seed by adaptive large neighbourhood search:
// each round removes a few nodes (random or related), reinserts them
// (cheapest or regret-2), polishes with 2-opt/or-opt and accepts the result
// simulated-annealing style. Operators that lead to improvements gain
// weight. It stops after maxStall rounds without a new best or at deadline.
func alns(m Matrix, seed []int, deadline time.Time, maxStall int, rng *rand.Rand) ([]int, searchStats) {
	var st searchStats
	best := localSearch(m, slices.Clone(seed), deadline)
	bestLen := m.PathLength(best)
	interior := len(best) - 2
	if interior < 4 {
		return best, st
	}
	curr, currLen := best, bestLen

	remW := []float64{1, 1}
	insW := []float64{1, 1}
	// a worse tour by one average leg is accepted with probability 1/e at start
	temp := bestLen / float64(interior+1)
	const cool = 0.995
	maxRemove := max(3, interior/10)

	for stall := 0; stall < maxStall && time.Now().Before(deadline); {
		st.Iterations++
		k := 1 + rng.Intn(min(maxRemove, interior-1))
		op := selectOp(remW, rng)
		st.RemovalSelects[op]++
		ip := selectOp(insW, rng)
		st.InsertSelects[ip]++

		var removed []int
		switch op {
		case removeRandom:
			removed = randomRemoval(curr, k, rng)
		case removeShaw:
			removed = shawRemoval(m, curr, k, rng)
		}
		cand := removeNodes(curr, removed)
		switch ip {
		case insertGreedy:
			cand = greedyInsert(m, cand, removed)
		case insertRegret:
			cand = regretInsert(m, cand, removed)
		}
		cand = localSearch(m, cand, deadline)
		candLen := m.PathLength(cand)

		delta := candLen - currLen
		switch {
		case candLen < bestLen-eps:
			best, bestLen = cand, candLen
			curr, currLen = cand, candLen
			remW[op] += 0.1
			insW[ip] += 0.1
			st.Improvements++
			stall = 0
		case delta < eps || rng.Float64() < math.Exp(-delta/(temp+1e-9)):
			if delta > eps {
				st.AcceptedWorse++
			}
			curr, currLen = cand, candLen
			remW[op] += 0.01
			insW[ip] += 0.01
			stall++
		default:
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
			stall++
		}
		temp *= cool
	}
	return best, st
}

// randomRemoval picks k distinct interior nodes.
func randomRemoval(t []int, k int, rng *rand.Rand) []int {
	inner := slices.Clone(t[1 : len(t)-1])
	rng.Shuffle(len(inner), func(i, j int) { inner[i], inner[j] = inner[j], inner[i] })
	return inner[:min(k, len(inner))]
}

// shawRemoval picks a random interior node and the k-1 nodes closest to it.
func shawRemoval(m Matrix, t []int, k int, rng *rand.Rand) []int {
	inner := slices.Clone(t[1 : len(t)-1])
	if len(inner) == 0 {
		return nil
	}
	seed := inner[rng.Intn(len(inner))]
	slices.SortFunc(inner, func(a, b int) int {
		switch da, db := m.At(seed, a), m.At(seed, b); {
		case a == b:
			return 0
		case a == seed:
			return -1
		case b == seed:
			return 1
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return a - b
	})
	return inner[:min(k, len(inner))]
}

// removeNodes returns t without the removed nodes.
func removeNodes(t []int, removed []int) []int {
	out := make([]int, 0, len(t))
	for i, v := range t {
		if i > 0 && i < len(t)-1 && slices.Contains(removed, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// insertionCost is the detour of placing x between t[p] and t[p+1].
func insertionCost(m Matrix, t []int, p, x int) float64 {
	u, v := t[p], t[p+1]
	return m.At(u, x) + m.At(x, v) - m.At(u, v)
}

func insertAt(t []int, p, x int) []int {
	return slices.Insert(t, p+1, x)
}

// greedyInsert places nodes one at a time at the cheapest position over
// all remaining nodes.
func greedyInsert(m Matrix, t []int, nodes []int) []int {
	nodes = slices.Clone(nodes)
	for len(nodes) > 0 {
		bestNode, bestPos := 0, 0
		bestCost := math.MaxFloat64
		for ni, x := range nodes {
			for p := 0; p < len(t)-1; p++ {
				if c := insertionCost(m, t, p, x); c < bestCost {
					bestCost, bestNode, bestPos = c, ni, p
				}
			}
		}
		t = insertAt(t, bestPos, nodes[bestNode])
		nodes = slices.Delete(nodes, bestNode, bestNode+1)
	}
	return t
}

// regretInsert places first the node that loses most when its best
// position is taken (regret-2), then repeats.
func regretInsert(m Matrix, t []int, nodes []int) []int {
	nodes = slices.Clone(nodes)
	for len(nodes) > 0 {
		bestNode, bestPos := -1, 0
		bestRegret, bestCost := -1.0, math.MaxFloat64
		for ni, x := range nodes {
			best1, best2 := math.MaxFloat64, math.MaxFloat64
			pos := 0
			for p := 0; p < len(t)-1; p++ {
				c := insertionCost(m, t, p, x)
				if c < best1 {
					best2, best1, pos = best1, c, p
				} else if c < best2 {
					best2 = c
				}
			}
			regret := 0.0
			if best2 < math.MaxFloat64 {
				regret = best2 - best1
			}
			if regret > bestRegret || (regret == bestRegret && best1 < bestCost) {
				bestNode, bestPos, bestRegret, bestCost = ni, pos, regret, best1
			}
		}
		t = insertAt(t, bestPos, nodes[bestNode])
		nodes = slices.Delete(nodes, bestNode, bestNode+1)
	}
	return t
}

// selectOp spins a roulette wheel over weights.
func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
