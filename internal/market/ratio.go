package market

import "sort"

// RatioPlanLine is one item's outcome in a ratio-buy plan.
type RatioPlanLine struct {
	Code   string `json:"code"`
	Weight int64  `json:"weight"`
	Price  int64  `json:"price"`
	Units  int64  `json:"units"`
	Cost   int64  `json:"cost"`
}

// RatioPlan is the full allocation for a ratio buy. Spent never exceeds
// the cash the plan was computed against.
type RatioPlan struct {
	Lines []RatioPlanLine `json:"lines"`
	Spent int64           `json:"spent"`
}

// PlanRatioBuy splits cash across items proportionally to their weights,
// then drains the pooled remainder greedily from the cheapest priced item
// up. Duplicate codes have their weights merged. Holdings caps are
// respected; zero-priced items absorb no budget.
func PlanRatioBuy(prices, holdings map[string]int64, cash int64, orders []WeightedOrder) (*RatioPlan, error) {
	if len(orders) == 0 {
		return nil, validationf("ratio order has no items")
	}
	if cash < 0 {
		cash = 0
	}

	weights := make(map[string]int64)
	var codes []string
	var totalWeight int64
	for _, o := range orders {
		if _, seen := weights[o.Code]; !seen {
			codes = append(codes, o.Code)
		}
		weights[o.Code] += o.Weight
		totalWeight += o.Weight
	}
	if totalWeight <= 0 {
		return nil, validationf("ratio weights must be positive")
	}

	plan := &RatioPlan{}
	bought := make(map[string]int64, len(codes))
	budgets := make(map[string]int64, len(codes))

	// Phase 1: floor-divided proportional budgets.
	for _, code := range codes {
		alloc := cash * weights[code] / totalWeight
		px := prices[code]
		if px > 0 {
			room := MaxItemUnits - holdings[code]
			units := alloc / px
			if units > room {
				units = room
			}
			if units < 0 {
				units = 0
			}
			cost := units * px
			bought[code] = units
			alloc -= cost
			plan.Spent += cost
		}
		budgets[code] = alloc
	}

	// Phase 2: pool the leftovers and sweep cheapest-first until no item
	// is affordable or every cap is hit.
	var pool int64
	for _, code := range codes {
		pool += budgets[code]
	}
	type priced struct {
		code  string
		price int64
	}
	var order []priced
	for _, code := range codes {
		if px := prices[code]; px > 0 {
			order = append(order, priced{code, px})
		}
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].price != order[j].price {
			return order[i].price < order[j].price
		}
		return order[i].code < order[j].code
	})
	for pool > 0 {
		progressed := false
		for _, pc := range order {
			if pc.price > pool {
				continue
			}
			if holdings[pc.code]+bought[pc.code] >= MaxItemUnits {
				continue
			}
			bought[pc.code]++
			pool -= pc.price
			plan.Spent += pc.price
			progressed = true
			if pool <= 0 {
				break
			}
		}
		if !progressed {
			break
		}
	}

	for _, code := range codes {
		px := prices[code]
		plan.Lines = append(plan.Lines, RatioPlanLine{
			Code:   code,
			Weight: weights[code],
			Price:  px,
			Units:  bought[code],
			Cost:   bought[code] * px,
		})
	}
	return plan, nil
}
