package game

import (
	"context"
	"fmt"
	"time"

	"stocksiege/internal/market"
)

// TradeLine reports one item's fill within a trade.
type TradeLine struct {
	Code      string `json:"code"`
	Requested int64  `json:"requested"`
	Filled    int64  `json:"filled"`
	Price     int64  `json:"price"`
	Amount    int64  `json:"amount"`
}

// TradeResult is the outcome of a buy, sell, or ratio buy.
type TradeResult struct {
	ParticipantID string      `json:"participant_id"`
	Lines         []TradeLine `json:"lines"`
	TotalCost     int64       `json:"total_cost,omitempty"`
	TotalIncome   int64       `json:"total_income,omitempty"`
	Cash          int64       `json:"cash"`
}

// tradeTarget loads and guards a portfolio for a trade. Admin callers skip
// the trading lock but nothing else.
func (s *Service) tradeTarget(ctx context.Context, participantID string, admin bool) (*market.Config, *market.Portfolio, error) {
	cfg, err := s.config(ctx)
	if err != nil {
		return nil, nil, err
	}
	if cfg.TradingLocked && !admin {
		return nil, nil, fmt.Errorf("%w: wait for the next trading window", market.ErrTradingLocked)
	}
	pf, err := s.portfolio(ctx, participantID)
	if err != nil {
		return nil, nil, err
	}
	if pf.Eliminated {
		return nil, nil, fmt.Errorf("%w: %q was eliminated in year %d and can no longer trade", market.ErrInvariant, participantID, pf.EliminationYear)
	}
	return cfg, pf, nil
}

// Buy executes a direct all-or-nothing purchase. Either every line fills
// at the participant's shown prices or the portfolio is untouched.
func (s *Service) Buy(ctx context.Context, participantID, rawOrders string) (*TradeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buy(ctx, participantID, rawOrders, false)
}

// AdminBuy is Buy on behalf of a participant, ignoring the trading lock.
// Cash still cannot go negative.
func (s *Service) AdminBuy(ctx context.Context, participantID, rawOrders string) (*TradeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buy(ctx, participantID, rawOrders, true)
}

func (s *Service) buy(ctx context.Context, participantID, rawOrders string, admin bool) (*TradeResult, error) {
	cfg, pf, err := s.tradeTarget(ctx, participantID, admin)
	if err != nil {
		return nil, err
	}
	orders, err := market.ParseOrders(cfg, rawOrders)
	if err != nil {
		return nil, err
	}

	next := make(map[string]int64, len(pf.Holdings))
	for code, q := range pf.Holdings {
		next[code] = q
	}
	res := &TradeResult{ParticipantID: participantID}
	for _, o := range orders {
		px := pf.ShownPrice(cfg, o.Code)
		amount := px * o.Quantity
		next[o.Code] += o.Quantity
		if next[o.Code] > market.MaxItemUnits {
			return nil, fmt.Errorf("%w: buying %d %s would exceed the %d unit cap", market.ErrInvariant, o.Quantity, o.Code, market.MaxItemUnits)
		}
		res.TotalCost += amount
		res.Lines = append(res.Lines, TradeLine{Code: o.Code, Requested: o.Quantity, Filled: o.Quantity, Price: px, Amount: amount})
	}
	if res.TotalCost > pf.Cash {
		return nil, fmt.Errorf("%w: order costs %d but only %d cash is available", market.ErrInvariant, res.TotalCost, pf.Cash)
	}

	pf.Cash -= res.TotalCost
	pf.Holdings = next
	pf.UpdatedAt = time.Now().UTC()
	if err := s.store.SavePortfolio(ctx, pf); err != nil {
		return nil, mapStoreErr(err)
	}
	res.Cash = pf.Cash
	s.log.Info("buy executed", "participant", participantID, "cost", res.TotalCost, "admin", admin)
	return res, nil
}

// Sell liquidates holdings back to cash at shown prices. Each line fills
// up to the owned quantity; asking for more than owned is not an error, the
// line simply fills short.
func (s *Service) Sell(ctx context.Context, participantID, rawOrders string) (*TradeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sell(ctx, participantID, rawOrders, false)
}

// AdminSell is Sell on behalf of a participant, ignoring the trading lock.
func (s *Service) AdminSell(ctx context.Context, participantID, rawOrders string) (*TradeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sell(ctx, participantID, rawOrders, true)
}

func (s *Service) sell(ctx context.Context, participantID, rawOrders string, admin bool) (*TradeResult, error) {
	cfg, pf, err := s.tradeTarget(ctx, participantID, admin)
	if err != nil {
		return nil, err
	}
	orders, err := market.ParseOrders(cfg, rawOrders)
	if err != nil {
		return nil, err
	}

	res := &TradeResult{ParticipantID: participantID}
	for _, o := range orders {
		px := pf.ShownPrice(cfg, o.Code)
		fill := o.Quantity
		if owned := pf.Holdings[o.Code]; fill > owned {
			fill = owned
		}
		amount := px * fill
		pf.Holdings[o.Code] -= fill
		res.TotalIncome += amount
		res.Lines = append(res.Lines, TradeLine{Code: o.Code, Requested: o.Quantity, Filled: fill, Price: px, Amount: amount})
	}

	pf.Cash += res.TotalIncome
	pf.UpdatedAt = time.Now().UTC()
	if err := s.store.SavePortfolio(ctx, pf); err != nil {
		return nil, mapStoreErr(err)
	}
	res.Cash = pf.Cash
	s.log.Info("sell executed", "participant", participantID, "income", res.TotalIncome, "admin", admin)
	return res, nil
}

// RatioBuy spends the participant's entire cash across items in the given
// weight proportions, then sweeps the remainder cheapest-first.
func (s *Service) RatioBuy(ctx context.Context, participantID, rawOrders string) (*TradeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, pf, err := s.tradeTarget(ctx, participantID, false)
	if err != nil {
		return nil, err
	}
	orders, err := market.ParseRatioOrders(cfg, rawOrders)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]int64, len(market.ItemCodes))
	for _, code := range market.ItemCodes {
		prices[code] = pf.ShownPrice(cfg, code)
	}
	plan, err := market.PlanRatioBuy(prices, pf.Holdings, pf.Cash, orders)
	if err != nil {
		return nil, err
	}

	res := &TradeResult{ParticipantID: participantID, TotalCost: plan.Spent}
	for _, line := range plan.Lines {
		pf.Holdings[line.Code] += line.Units
		res.Lines = append(res.Lines, TradeLine{
			Code:      line.Code,
			Requested: line.Weight,
			Filled:    line.Units,
			Price:     line.Price,
			Amount:    line.Cost,
		})
	}
	pf.Cash -= plan.Spent
	pf.UpdatedAt = time.Now().UTC()
	if err := s.store.SavePortfolio(ctx, pf); err != nil {
		return nil, mapStoreErr(err)
	}
	res.Cash = pf.Cash
	s.log.Info("ratio buy executed", "participant", participantID, "spent", plan.Spent)
	return res, nil
}

// AdminForceCash zeroes a portfolio's holdings and sets its cash outright.
func (s *Service) AdminForceCash(ctx context.Context, participantID string, amount int64) (*market.Portfolio, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: cash cannot be negative", market.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.config(ctx); err != nil {
		return nil, err
	}
	pf, err := s.portfolio(ctx, participantID)
	if err != nil {
		return nil, err
	}
	pf.Cash = amount
	for _, code := range market.ItemCodes {
		pf.Holdings[code] = 0
	}
	pf.UpdatedAt = time.Now().UTC()
	if err := s.store.SavePortfolio(ctx, pf); err != nil {
		return nil, mapStoreErr(err)
	}
	s.log.Info("cash forced", "participant", participantID, "cash", amount)
	return pf, nil
}

// AdminClear liquidates every holding into cash at the portfolio's shown
// prices, regardless of the trading lock.
func (s *Service) AdminClear(ctx context.Context, participantID string) (*TradeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	pf, err := s.portfolio(ctx, participantID)
	if err != nil {
		return nil, err
	}

	res := &TradeResult{ParticipantID: participantID}
	for _, code := range market.ItemCodes {
		q := pf.Holdings[code]
		if q == 0 {
			continue
		}
		px := pf.ShownPrice(cfg, code)
		amount := px * q
		pf.Holdings[code] = 0
		res.TotalIncome += amount
		res.Lines = append(res.Lines, TradeLine{Code: code, Requested: q, Filled: q, Price: px, Amount: amount})
	}
	pf.Cash += res.TotalIncome
	pf.UpdatedAt = time.Now().UTC()
	if err := s.store.SavePortfolio(ctx, pf); err != nil {
		return nil, mapStoreErr(err)
	}
	res.Cash = pf.Cash
	s.log.Info("portfolio cleared", "participant", participantID, "income", res.TotalIncome)
	return res, nil
}
