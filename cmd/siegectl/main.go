package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cl "stocksiege/internal/cli"
	"stocksiege/internal/config"
	"stocksiege/internal/game"
	"stocksiege/internal/market"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadCLIFromEnv()

	root := &cobra.Command{
		Use:          "siegectl",
		Short:        "Stock Siege game client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newJoinCmd(cfg),
		newLeaveCmd(),
		newMarketCmd(cfg),
		newOddsCmd(cfg),
		newPortfolioCmd(cfg),
		newBuyCmd(cfg),
		newSellCmd(cfg),
		newStandingsCmd(cfg),
		newRankingCmd(cfg),
		newAdminCmd(cfg),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(cfg config.CLIConfig) *cl.Client {
	return cl.NewClient(cfg.APIBaseURL, cfg.AdminToken)
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

// participantID resolves the acting participant: an explicit --as flag wins,
// otherwise the saved session from `siegectl join`.
func participantID(cmd *cobra.Command) (string, error) {
	if as, _ := cmd.Flags().GetString("as"); strings.TrimSpace(as) != "" {
		return strings.TrimSpace(as), nil
	}
	sess, err := cl.LoadSession()
	if err != nil {
		return "", fmt.Errorf("join first or pass --as: %w", err)
	}
	return sess.ParticipantID, nil
}

func newJoinCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "join <participant-id>",
		Short: "Register for the running season",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			pf, err := newClient(cfg).Register(ctx, args[0])
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{ParticipantID: pf.ParticipantID}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Joined as %s with %s cash.", pf.ParticipantID, formatCash(pf.Cash)))
			return nil
		},
	}
}

func newLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Forget the saved participant id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Session cleared.")
			return nil
		},
	}
}

func newMarketCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "Show current item prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			view, err := newClient(cfg).Market(ctx)
			if err != nil {
				return err
			}
			renderMarket(view)
			return nil
		},
	}
}

func newOddsCmd(cfg config.CLIConfig) *cobra.Command {
	var owner bool
	cmd := &cobra.Command{
		Use:   "odds",
		Short: "Show rise-percent hints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			scope := "rhint"
			if owner {
				scope = "owner"
			}
			odds, err := newClient(cfg).Odds(ctx, scope)
			if err != nil {
				return err
			}
			renderOdds(scope, odds)
			return nil
		},
	}
	cmd.Flags().BoolVar(&owner, "owner", false, "full-history odds (admin token required)")
	return cmd
}

func newPortfolioCmd(cfg config.CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Show your cash and holdings",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := participantID(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			pf, err := newClient(cfg).Portfolio(ctx, id)
			if err != nil {
				return err
			}
			renderPortfolio(pf)
			return nil
		},
	}
	cmd.Flags().String("as", "", "act as this participant id")
	return cmd
}

func newBuyCmd(cfg config.CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buy <orders>",
		Short: "Buy items, e.g. \"A 5, grain 2\" or ratio \"A 1 : B 2\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := participantID(cmd)
			if err != nil {
				return err
			}
			orders := strings.Join(args, " ")
			ratio, err := market.IsRatioOrder(orders)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(cfg)
			var res *game.TradeResult
			if ratio {
				res, err = client.RatioBuy(ctx, id, orders)
			} else {
				res, err = client.Buy(ctx, id, orders)
			}
			if err != nil {
				return err
			}
			renderTrade("Bought", res)
			return nil
		},
	}
	cmd.Flags().String("as", "", "act as this participant id")
	return cmd
}

func newSellCmd(cfg config.CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sell <orders>",
		Short: "Sell items, e.g. \"A 5, steel 10\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := participantID(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			res, err := newClient(cfg).Sell(ctx, id, strings.Join(args, " "))
			if err != nil {
				return err
			}
			renderTrade("Sold", res)
			return nil
		},
	}
	cmd.Flags().String("as", "", "act as this participant id")
	return cmd
}

func newStandingsCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "standings",
		Short: "Show the scoreboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			rows, err := newClient(cfg).Standings(ctx)
			if err != nil {
				return err
			}
			renderStandings(rows)
			return nil
		},
	}
}

func newRankingCmd(cfg config.CLIConfig) *cobra.Command {
	var policy string
	cmd := &cobra.Command{
		Use:   "ranking",
		Short: "Show the elimination-mode final ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			rank, err := newClient(cfg).FinalRanking(ctx, policy)
			if err != nil {
				return err
			}
			renderRanking(rank)
			return nil
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "", "ranking policy: survival or cash")
	return cmd
}

func newAdminCmd(cfg config.CLIConfig) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Season owner commands",
	}
	admin.AddCommand(
		newAdminResetCmd(cfg),
		newAdminChangesCmd(cfg),
		newAdminGenerateCmd(cfg),
		newAdminStageCmd(cfg),
		newAdminSettleCmd(cfg),
		newAdminRevertCmd(cfg),
		newAdminLockCmd(cfg),
		newAdminModeCmd(cfg),
		newAdminPolicyCmd(cfg),
		newAdminFreezeCmd(cfg),
		newAdminTradeCmd(cfg, "buy", "Buy on a participant's behalf"),
		newAdminTradeCmd(cfg, "sell", "Sell on a participant's behalf"),
		newAdminForceCashCmd(cfg),
		newAdminClearCmd(cfg),
		newAdminCutCmd(cfg),
	)
	return admin
}

func newAdminResetCmd(cfg config.CLIConfig) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "reset <code=name:price>...",
		Short: "Wipe everything and start a season",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseSeedItems(args)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			if err := newClient(cfg).ResetSeason(ctx, mode, items); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Season started in %s mode with %d items.", mode, len(items)))
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "classic", "game mode: classic, elimination, apocalypse")
	return cmd
}

// parseSeedItems reads "A=Grain:100" tokens into seed items.
func parseSeedItems(args []string) ([]cl.SeedItem, error) {
	items := make([]cl.SeedItem, 0, len(args))
	for _, arg := range args {
		code, rest, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("bad item %q, want code=name:price", arg)
		}
		name, priceStr, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("bad item %q, want code=name:price", arg)
		}
		price, err := strconv.ParseInt(priceStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad price in %q: %w", arg, err)
		}
		items = append(items, cl.SeedItem{
			Code:  strings.ToUpper(strings.TrimSpace(code)),
			Name:  strings.TrimSpace(name),
			Price: price,
		})
	}
	return items, nil
}

func newAdminChangesCmd(cfg config.CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changes [code=pct ...]",
		Short: "List year changes, or set next year's manually",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(cfg)
			if len(args) == 0 {
				years, err := client.YearHistory(ctx)
				if err != nil {
					return err
				}
				renderYearHistory(years)
				return nil
			}
			changes := make(map[string]int, len(args))
			for _, arg := range args {
				ident, pctStr, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("bad change %q, want code=pct", arg)
				}
				pct, err := strconv.Atoi(pctStr)
				if err != nil {
					return fmt.Errorf("bad percent in %q: %w", arg, err)
				}
				changes[strings.TrimSpace(ident)] = pct
			}
			yc, err := client.SetYearChange(ctx, changes)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Year %d changes locked.", yc.Year))
			return nil
		},
	}
	return cmd
}

func newAdminGenerateCmd(cfg config.CLIConfig) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Draw next year's changes from the odds",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(cfg)
			preview, err := client.PreviewGenerate(ctx)
			if err != nil {
				return err
			}
			renderDraw(preview.Draw)
			if !yes {
				ok, err := promptYesNo("Commit this draw?")
				if err != nil {
					return err
				}
				if !ok {
					printInfo("Draw discarded.")
					return nil
				}
			}
			yc, err := client.CommitGenerate(ctx, preview.Token)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Year %d changes locked.", yc.Year))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "commit without confirming")
	return cmd
}

func newAdminStageCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "stage <year>",
		Short: "Stage the next year's prices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("bad year %q: %w", args[0], err)
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			res, err := newClient(cfg).Stage(ctx, year)
			if err != nil {
				return err
			}
			renderStage(res)
			return nil
		},
	}
}

func newAdminSettleCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "settle",
		Short: "Liquidate portfolios and commit staged prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			res, err := newClient(cfg).Settle(ctx)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Year %d settled: %d portfolios liquidated for %s.",
				res.Year, res.Liquidated, formatCash(res.TotalPaid)))
			return nil
		},
	}
}

func newAdminRevertCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "revert",
		Short: "Roll the season back one transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			res, err := newClient(cfg).Revert(ctx)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Reverted year %d, season is back at the end of year %d.",
				res.Year, res.BackToEnd))
			return nil
		},
	}
}

func newAdminLockCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "lock <on|off>",
		Short: "Lock or unlock participant trading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var locked bool
			switch args[0] {
			case "on":
				locked = true
			case "off":
				locked = false
			default:
				return fmt.Errorf("want on or off, got %q", args[0])
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			if err := newClient(cfg).SetLock(ctx, locked); err != nil {
				return err
			}
			if locked {
				printSuccess("Trading locked.")
			} else {
				printSuccess("Trading unlocked.")
			}
			return nil
		},
	}
}

func newAdminModeCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "mode <classic|elimination|apocalypse>",
		Short: "Switch the season's game mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			if err := newClient(cfg).SetMode(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Game mode set to " + args[0] + ".")
			return nil
		},
	}
}

func newAdminPolicyCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "policy <survival|cash>",
		Short: "Pick the elimination ranking policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			if err := newClient(cfg).SetPolicy(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Ranking policy set to " + args[0] + ".")
			return nil
		},
	}
}

func newAdminFreezeCmd(cfg config.CLIConfig) *cobra.Command {
	var thaw bool
	cmd := &cobra.Command{
		Use:   "freeze <participant-id>",
		Short: "Freeze a portfolio at current prices through staging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			pf, err := newClient(cfg).SetFreeze(ctx, args[0], !thaw)
			if err != nil {
				return err
			}
			if pf.Frozen {
				printSuccess(pf.ParticipantID + " frozen.")
			} else {
				printSuccess(pf.ParticipantID + " unfrozen.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&thaw, "off", false, "unfreeze instead")
	return cmd
}

func newAdminTradeCmd(cfg config.CLIConfig, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <participant-id> <orders>",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(cfg)
			orders := strings.Join(args[1:], " ")
			var res *game.TradeResult
			var err error
			label := "Bought"
			if verb == "buy" {
				res, err = client.AdminBuy(ctx, args[0], orders)
			} else {
				res, err = client.AdminSell(ctx, args[0], orders)
				label = "Sold"
			}
			if err != nil {
				return err
			}
			renderTrade(label, res)
			return nil
		},
	}
}

func newAdminForceCashCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "force-cash <participant-id> <amount>",
		Short: "Set a participant's cash and wipe holdings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("bad amount %q: %w", args[1], err)
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			pf, err := newClient(cfg).ForceCash(ctx, args[0], amount)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s now holds %s cash and no items.", pf.ParticipantID, formatCash(pf.Cash)))
			return nil
		},
	}
}

func newAdminClearCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <participant-id>",
		Short: "Liquidate a participant's holdings at shown prices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			res, err := newClient(cfg).ClearPortfolio(ctx, args[0])
			if err != nil {
				return err
			}
			renderTrade("Cleared", res)
			return nil
		},
	}
}

func newAdminCutCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "cut",
		Short: "Eliminate the three poorest survivors",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			res, err := newClient(cfg).BottomCut(ctx)
			if err != nil {
				return err
			}
			renderCut(res)
			return nil
		},
	}
}
