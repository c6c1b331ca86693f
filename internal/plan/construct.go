package plan

import (
	"context"
	"math"
	"math/rand"
	"time"

	"poleplan/internal/model"
	"poleplan/internal/traveltime"
)

// Move operator indices for adaptive selection.
const (
	moveRelocate = iota
	moveSwap
	moveTwoOpt
)

// ConstructiveEngine builds a first solution across all drivers at once and
// then improves it with a time-bounded local search. The improvement loop
// checks elapsed time and the improving-solution count between steps and
// terminates cooperatively; hitting the budget is a normal outcome, not an
// error.
type ConstructiveEngine struct {
	Params        CostParams
	Snap          traveltime.Snapshot
	TimeLimit     time.Duration
	SolutionLimit int
	FirstSolution string
	Metaheuristic string
	// Seed pins the random source; zero derives it from the plan date so
	// identical inputs replay identically.
	Seed int64
}

func (e *ConstructiveEngine) Name() string { return model.EngineConstructive }

func (e *ConstructiveEngine) Plan(ctx context.Context, day model.Day, candidates []model.Location, fleet []DriverDay) (DayPlan, error) {
	builds := newBuilds(fleet)
	out := DayPlan{Metrics: EngineMetrics{Engine: model.EngineConstructive}}

	pending := make([]model.Location, 0, len(candidates))
	for _, loc := range candidates {
		if loc.FixedDate != nil && !model.Midnight(*loc.FixedDate).Equal(model.Midnight(day.Date)) {
			out.Unplanned = append(out.Unplanned, loc.ID)
			continue
		}
		pending = append(pending, loc)
	}

	// construction phase
	var unplaced []model.Location
	switch e.FirstSolution {
	case model.FirstSolutionSavings:
		unplaced = e.seedSavings(builds, pending, day.Date)
	default: // cheapest_arc
		unplaced = e.seedCheapestArc(builds, pending, day.Date)
	}
	for _, loc := range unplaced {
		// partial infeasibility: keep the feasible subset, report the rest
		out.Unplanned = append(out.Unplanned, loc.ID)
	}

	// improvement phase
	e.improve(ctx, builds, &out.Metrics)

	for _, b := range builds {
		for _, loc := range b.locs {
			if !inSeed(b.dd.Seed, loc.ID) {
				out.Planned = append(out.Planned, loc.ID)
			}
		}
	}
	out.Routes = materialize(builds, tenantOf(candidates, fleet), day.Date, e.Snap)
	return out, nil
}

func inSeed(seed []model.Location, id string) bool {
	for _, s := range seed {
		if s.ID == id {
			return true
		}
	}
	return false
}

// seedCheapestArc repeatedly commits the globally cheapest feasible
// (candidate, position) pair across all drivers. Ties go to the earlier due
// date, then the smaller location ID.
func (e *ConstructiveEngine) seedCheapestArc(builds []*routeBuild, pending []model.Location, day time.Time) []model.Location {
	remaining := append([]model.Location(nil), pending...)
	for len(remaining) > 0 {
		bestIdx := -1
		var bestIns insertion
		for i, loc := range remaining {
			ins, ok := bestInsertion(builds, loc, day, e.Params, e.Snap)
			if !ok {
				continue
			}
			if bestIdx == -1 || cheaperCandidate(ins, remaining[i], bestIns, remaining[bestIdx]) {
				bestIdx = i
				bestIns = ins
			}
		}
		if bestIdx == -1 {
			return remaining
		}
		builds[bestIns.build].insertAt(remaining[bestIdx], bestIns.pos)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return nil
}

func cheaperCandidate(aIns insertion, a model.Location, bIns insertion, b model.Location) bool {
	const eps = 1e-9
	if aIns.cost+eps < bIns.cost {
		return true
	}
	if bIns.cost+eps < aIns.cost {
		return false
	}
	ad, bd := model.Midnight(a.DueDate), model.Midnight(b.DueDate)
	if !ad.Equal(bd) {
		return ad.Before(bd)
	}
	return a.ID < b.ID
}

// seedSavings appends, round-robin over drivers, each driver's cheapest
// remaining candidate measured from its route tail. This pairs nearby work
// onto the same route before any position search runs.
func (e *ConstructiveEngine) seedSavings(builds []*routeBuild, pending []model.Location, day time.Time) []model.Location {
	remaining := append([]model.Location(nil), pending...)
	for {
		progress := false
		for _, b := range builds {
			bestIdx := -1
			bestCost := math.MaxFloat64
			tail := b.dd.Driver.Home
			if n := len(b.locs); n > 0 {
				tail = b.locs[n-1].Position
			}
			for i, loc := range remaining {
				if !fitsCapacity(b, loc, len(b.locs), e.Snap) {
					continue
				}
				c := traveltime.HaversineKm(tail, loc.Position) + e.Params.DueCost(loc, day)
				if c < bestCost || (c == bestCost && bestIdx >= 0 && loc.ID < remaining[bestIdx].ID) {
					bestCost = c
					bestIdx = i
				}
			}
			if bestIdx >= 0 {
				b.locs = append(b.locs, remaining[bestIdx])
				remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
				progress = true
			}
		}
		if !progress || len(remaining) == 0 {
			return remaining
		}
	}
}

// improve perturbs the solution with relocate, swap, and 2-opt moves under
// the configured metaheuristic until the time budget elapses or enough
// improving solutions have been found. Operator weights adapt toward the
// moves that produce improvements.
func (e *ConstructiveEngine) improve(ctx context.Context, builds []*routeBuild, m *EngineMetrics) {
	seed := e.Seed
	if seed == 0 {
		seed = 1
		for _, b := range builds {
			seed += int64(len(b.locs))
		}
		seed *= 7919
	}
	rng := rand.New(rand.NewSource(seed))

	limit := e.TimeLimit
	if limit <= 0 {
		limit = 500 * time.Millisecond
	}
	solLimit := e.SolutionLimit
	if solLimit <= 0 {
		solLimit = math.MaxInt
	}
	deadline := time.Now().Add(limit)

	weights := [3]float64{1, 1, 1}
	curr := copyOrders(builds)
	currCost := e.ordersCost(builds, curr)
	best := copyOrders(builds)
	bestCost := currCost
	m.BestCost = bestCost

	// a single stop (or none) has no distinct neighbor; searching would
	// spin until the deadline without ever improving
	total := 0
	for _, b := range builds {
		total += len(b.locs)
	}
	if total <= 1 {
		m.FinalCost = bestCost
		m.FinalMoveWeights = weights
		return
	}

	gls := newGLSState(e.Params)
	tabu := map[string]int{}
	const tabuTenure = 12
	solutions := 0
	stall := 0
	idle := 0
	const snapshotEvery = 50
	// consecutive failed move attempts before declaring the neighborhood
	// exhausted (every move either inapplicable or capacity-infeasible)
	const idleLimit = 200

	for {
		if time.Now().After(deadline) {
			m.BudgetExhausted = true
			break
		}
		if solutions >= solLimit {
			break
		}
		select {
		case <-ctx.Done():
			m.BudgetExhausted = true
		default:
		}
		if m.BudgetExhausted {
			break
		}
		m.Iterations++

		op := selectMove(weights, rng)
		m.MoveSelects[op]++
		next, moved, ok := e.neighbor(builds, curr, op, rng)
		if !ok {
			m.RejectedMoves++
			idle++
			if idle >= idleLimit {
				break
			}
			continue
		}
		idle = 0
		nextCost := e.ordersCost(builds, next)

		accepted := false
		switch e.Metaheuristic {
		case model.MetaTabuSearch:
			tabooed := false
			for _, id := range moved {
				if exp, held := tabu[id]; held && exp > m.Iterations {
					tabooed = true
					break
				}
			}
			// aspiration: a new global best overrides tabu status
			if nextCost+1e-9 < bestCost {
				accepted = true
			} else if !tabooed && nextCost <= currCost+1e-9 {
				accepted = true
			}
			if accepted {
				for _, id := range moved {
					tabu[id] = m.Iterations + tabuTenure
				}
			}
		default: // guided local search
			if gls.augmented(next, nextCost) <= gls.augmented(curr, currCost)+1e-9 {
				accepted = true
			}
		}

		if accepted {
			curr = next
			currCost = nextCost
			stall = 0
			if nextCost+1e-9 < bestCost {
				best = cloneOrders(next)
				bestCost = nextCost
				m.Improvements++
				m.BestCost = bestCost
				solutions++
				weights[op] += 0.1
			} else {
				weights[op] += 0.01
			}
		} else {
			m.RejectedMoves++
			weights[op] = math.Max(0.01, weights[op]*0.999)
			stall++
			if e.Metaheuristic != model.MetaTabuSearch && stall >= 20 {
				// stuck: penalize the longest arc to reshape the landscape
				gls.penalizeLongestArc(builds, curr, e.Snap)
				stall = 0
			}
		}
		if m.Iterations%snapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, WeightSnapshot{Iteration: m.Iterations, Weights: weights})
		}
	}

	applyOrders(builds, best)
	m.FinalCost = bestCost
	m.FinalMoveWeights = weights
}

// neighbor produces one perturbed copy of curr, reporting the moved
// location IDs. ok is false when no applicable move exists.
func (e *ConstructiveEngine) neighbor(builds []*routeBuild, curr [][]model.Location, op int, rng *rand.Rand) ([][]model.Location, []string, bool) {
	next := cloneOrders(curr)
	switch op {
	case moveRelocate:
		from := nonEmptyRoute(next, rng)
		if from < 0 {
			return nil, nil, false
		}
		i := rng.Intn(len(next[from]))
		loc := next[from][i]
		next[from] = append(next[from][:i], next[from][i+1:]...)
		to := rng.Intn(len(next))
		pos := 0
		if len(next[to]) > 0 {
			pos = rng.Intn(len(next[to]) + 1)
		}
		next[to] = insertLoc(next[to], loc, pos)
		if !e.ordersFeasible(builds, next, from, to) {
			return nil, nil, false
		}
		return next, []string{loc.ID}, true
	case moveSwap:
		a := nonEmptyRoute(next, rng)
		b := nonEmptyRoute(next, rng)
		if a < 0 || b < 0 || (a == b && len(next[a]) < 2) {
			return nil, nil, false
		}
		i := rng.Intn(len(next[a]))
		j := rng.Intn(len(next[b]))
		if a == b && i == j {
			return nil, nil, false
		}
		next[a][i], next[b][j] = next[b][j], next[a][i]
		if !e.ordersFeasible(builds, next, a, b) {
			return nil, nil, false
		}
		return next, []string{next[a][i].ID, next[b][j].ID}, true
	default: // two-opt segment reversal within one route
		r := -1
		for idx := range next {
			if len(next[idx]) >= 3 {
				r = idx
				break
			}
		}
		if r < 0 {
			return nil, nil, false
		}
		n := len(next[r])
		i := rng.Intn(n - 1)
		k := i + 1 + rng.Intn(n-i-1)
		for a, b := i, k; a < b; a, b = a+1, b-1 {
			next[r][a], next[r][b] = next[r][b], next[r][a]
		}
		if !e.ordersFeasible(builds, next, r, r) {
			return nil, nil, false
		}
		return next, []string{next[r][i].ID, next[r][k].ID}, true
	}
}

func (e *ConstructiveEngine) ordersFeasible(builds []*routeBuild, orders [][]model.Location, touched ...int) bool {
	seen := map[int]bool{}
	for _, idx := range touched {
		if seen[idx] {
			continue
		}
		seen[idx] = true
		if totalMinutes(builds[idx].dd, orders[idx], e.Snap) > builds[idx].dd.CapacityMinutes {
			return false
		}
	}
	return true
}

// ordersCost is the solution objective: total travel km across all routes.
// Due cost is identical for every placement within the same day, so it does
// not discriminate between neighbors and is omitted here.
func (e *ConstructiveEngine) ordersCost(builds []*routeBuild, orders [][]model.Location) float64 {
	total := 0.0
	for i, order := range orders {
		prev := builds[i].dd.Driver.Home
		for _, loc := range order {
			total += traveltime.HaversineKm(prev, loc.Position)
			prev = loc.Position
		}
	}
	return total
}

func nonEmptyRoute(orders [][]model.Location, rng *rand.Rand) int {
	idxs := make([]int, 0, len(orders))
	for i := range orders {
		if len(orders[i]) > 0 {
			idxs = append(idxs, i)
		}
	}
	if len(idxs) == 0 {
		return -1
	}
	return idxs[rng.Intn(len(idxs))]
}

func insertLoc(order []model.Location, loc model.Location, pos int) []model.Location {
	order = append(order, model.Location{})
	copy(order[pos+1:], order[pos:])
	order[pos] = loc
	return order
}

func copyOrders(builds []*routeBuild) [][]model.Location {
	out := make([][]model.Location, len(builds))
	for i, b := range builds {
		out[i] = append([]model.Location(nil), b.locs...)
	}
	return out
}

func cloneOrders(orders [][]model.Location) [][]model.Location {
	out := make([][]model.Location, len(orders))
	for i := range orders {
		out[i] = append([]model.Location(nil), orders[i]...)
	}
	return out
}

func applyOrders(builds []*routeBuild, orders [][]model.Location) {
	for i := range builds {
		builds[i].locs = orders[i]
	}
}

func selectMove(weights [3]float64, rng *rand.Rand) int {
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

// glsState carries guided-local-search arc penalties. Arcs are keyed by the
// unordered pair of endpoint location IDs (home is the empty ID).
type glsState struct {
	lambda    float64
	penalties map[[2]string]float64
}

func newGLSState(cp CostParams) *glsState {
	lambda := cp.DetourRefKm * 0.05
	if lambda <= 0 {
		lambda = 1
	}
	return &glsState{lambda: lambda, penalties: map[[2]string]float64{}}
}

func arcKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (g *glsState) augmented(orders [][]model.Location, base float64) float64 {
	if len(g.penalties) == 0 {
		return base
	}
	pen := 0.0
	for _, order := range orders {
		prevID := ""
		for _, loc := range order {
			pen += g.penalties[arcKey(prevID, loc.ID)]
			prevID = loc.ID
		}
	}
	return base + g.lambda*pen
}

func (g *glsState) penalizeLongestArc(builds []*routeBuild, orders [][]model.Location, snap traveltime.Snapshot) {
	worst := -1.0
	var worstKey [2]string
	for i, order := range orders {
		prev := builds[i].dd.Driver.Home
		prevID := ""
		for _, loc := range order {
			// utility of penalizing: arc length discounted by prior penalties
			d := traveltime.HaversineKm(prev, loc.Position)
			key := arcKey(prevID, loc.ID)
			util := d / (1 + g.penalties[key])
			if util > worst {
				worst = util
				worstKey = key
			}
			prev = loc.Position
			prevID = loc.ID
		}
	}
	if worst > 0 {
		g.penalties[worstKey]++
	}
}
