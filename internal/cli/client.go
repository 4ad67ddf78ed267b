// Package cli holds the HTTP client and local state used by siegectl.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stocksiege/internal/game"
	"stocksiege/internal/market"
)

type Client struct {
	BaseURL    string
	AdminToken string
	HTTP       *http.Client
}

func NewClient(baseURL, adminToken string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AdminToken: adminToken,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type MarketView struct {
	Items []struct {
		Code  string `json:"code"`
		Name  string `json:"name"`
		Price int64  `json:"price"`
	} `json:"items"`
	GameMode        market.GameMode `json:"game_mode"`
	TradingLocked   bool            `json:"trading_locked"`
	Staged          bool            `json:"staged"`
	LastSettledYear int             `json:"last_settled_year"`
}

func (c *Client) Market(ctx context.Context) (*MarketView, error) {
	var out MarketView
	err := c.jsonRequest(ctx, http.MethodGet, "/api/v1/market", nil, &out, false)
	return &out, err
}

func (c *Client) Register(ctx context.Context, participantID string) (*market.Portfolio, error) {
	var out market.Portfolio
	err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/participants", map[string]any{
		"participant_id": participantID,
	}, &out, false)
	return &out, err
}

func (c *Client) Portfolio(ctx context.Context, participantID string) (*market.Portfolio, error) {
	var out market.Portfolio
	err := c.jsonRequest(ctx, http.MethodGet, "/api/v1/participants/"+url.PathEscape(participantID), nil, &out, false)
	return &out, err
}

func (c *Client) Odds(ctx context.Context, scope string) (map[string]int, error) {
	path := "/api/v1/odds"
	admin := false
	if scope != "" {
		path += "?scope=" + url.QueryEscape(scope)
		admin = scope == "owner"
	}
	var out struct {
		Odds map[string]int `json:"odds"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, admin)
	return out.Odds, err
}

func (c *Client) Standings(ctx context.Context) ([]game.StandingRow, error) {
	var out struct {
		Rows []game.StandingRow `json:"rows"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/api/v1/standings", nil, &out, false)
	return out.Rows, err
}

func (c *Client) FinalRanking(ctx context.Context, policy string) (*game.FinalRanking, error) {
	path := "/api/v1/elimination/ranking"
	if policy != "" {
		path += "?policy=" + url.QueryEscape(policy)
	}
	var out game.FinalRanking
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, false)
	return &out, err
}

func (c *Client) trade(ctx context.Context, verb, participantID, orders string) (*game.TradeResult, error) {
	var out game.TradeResult
	path := "/api/v1/portfolios/" + url.PathEscape(participantID) + "/" + verb
	err := c.jsonRequest(ctx, http.MethodPost, path, map[string]any{"orders": orders}, &out, false)
	return &out, err
}

func (c *Client) Buy(ctx context.Context, participantID, orders string) (*game.TradeResult, error) {
	return c.trade(ctx, "buy", participantID, orders)
}

func (c *Client) Sell(ctx context.Context, participantID, orders string) (*game.TradeResult, error) {
	return c.trade(ctx, "sell", participantID, orders)
}

func (c *Client) RatioBuy(ctx context.Context, participantID, orders string) (*game.TradeResult, error) {
	return c.trade(ctx, "ratio-buy", participantID, orders)
}

func (c *Client) YearHistory(ctx context.Context) ([]*market.YearChange, error) {
	var out struct {
		Years []*market.YearChange `json:"years"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/api/v1/admin/changes", nil, &out, true)
	return out.Years, err
}

func (c *Client) SetYearChange(ctx context.Context, changes map[string]int) (*market.YearChange, error) {
	var out market.YearChange
	err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/changes", map[string]any{
		"changes": changes,
	}, &out, true)
	return &out, err
}

func (c *Client) PreviewGenerate(ctx context.Context) (*game.GeneratePreview, error) {
	var out game.GeneratePreview
	err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/changes/preview", nil, &out, true)
	return &out, err
}

func (c *Client) CommitGenerate(ctx context.Context, token string) (*market.YearChange, error) {
	var out market.YearChange
	err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/changes/commit", map[string]any{
		"token": token,
	}, &out, true)
	return &out, err
}

func (c *Client) Stage(ctx context.Context, year int) (*game.StageResult, error) {
	var out game.StageResult
	err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/stage", map[string]any{
		"year": year,
	}, &out, true)
	return &out, err
}

func (c *Client) Settle(ctx context.Context) (*game.SettleResult, error) {
	var out game.SettleResult
	err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/settle", nil, &out, true)
	return &out, err
}

func (c *Client) Revert(ctx context.Context) (*game.RevertResult, error) {
	var out game.RevertResult
	err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/revert", nil, &out, true)
	return &out, err
}

func (c *Client) adminTrade(ctx context.Context, verb, participantID, orders string) (*game.TradeResult, error) {
	var out game.TradeResult
	err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/"+verb, map[string]any{
		"participant_id": participantID,
		"orders":         orders,
	}, &out, true)
	return &out, err
}

func (c *Client) AdminBuy(ctx context.Context, participantID, orders string) (*game.TradeResult, error) {
	return c.adminTrade(ctx, "buy", participantID, orders)
}

func (c *Client) AdminSell(ctx context.Context, participantID, orders string) (*game.TradeResult, error) {
	return c.adminTrade(ctx, "sell", participantID, orders)
}

func (c *Client) ForceCash(ctx context.Context, participantID string, amount int64) (*market.Portfolio, error) {
	var out market.Portfolio
	err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/force-cash", map[string]any{
		"participant_id": participantID,
		"amount":         amount,
	}, &out, true)
	return &out, err
}

func (c *Client) ClearPortfolio(ctx context.Context, participantID string) (*game.TradeResult, error) {
	var out game.TradeResult
	err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/clear", map[string]any{
		"participant_id": participantID,
	}, &out, true)
	return &out, err
}

func (c *Client) SetLock(ctx context.Context, locked bool) error {
	return c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/lock", map[string]any{
		"locked": locked,
	}, nil, true)
}

func (c *Client) SetMode(ctx context.Context, mode string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/mode", map[string]any{
		"mode": mode,
	}, nil, true)
}

func (c *Client) SetPolicy(ctx context.Context, policy string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/policy", map[string]any{
		"policy": policy,
	}, nil, true)
}

func (c *Client) SetFreeze(ctx context.Context, participantID string, frozen bool) (*market.Portfolio, error) {
	var out market.Portfolio
	err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/freeze", map[string]any{
		"participant_id": participantID,
		"frozen":         frozen,
	}, &out, true)
	return &out, err
}

type SeedItem struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

func (c *Client) ResetSeason(ctx context.Context, mode string, items []SeedItem) error {
	return c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/reset", map[string]any{
		"mode":  mode,
		"items": items,
	}, nil, true)
}

func (c *Client) BottomCut(ctx context.Context) (*game.CutResult, error) {
	var out game.CutResult
	err := c.jsonRequest(ctx, http.MethodPost, "/api/v1/admin/elimination/cut", nil, &out, true)
	return &out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, admin bool) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		if strings.TrimSpace(c.AdminToken) == "" {
			return fmt.Errorf("admin token required, set SIEGE_ADMIN_TOKEN")
		}
		req.Header.Set("X-Admin-Token", c.AdminToken)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
