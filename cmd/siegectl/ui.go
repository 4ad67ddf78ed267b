package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	cl "stocksiege/internal/cli"
	"stocksiege/internal/game"
	"stocksiege/internal/market"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptYesNo(label string) (bool, error) {
	fmt.Printf("%s [y/N]: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// formatCash renders an amount with thousands separators.
func formatCash(amount int64) string {
	s := strconv.FormatInt(amount, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := "$" + strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}

func renderMarket(view *cl.MarketView) {
	header := fmt.Sprintf("Year %d · %s mode", view.LastSettledYear, view.GameMode)
	if view.Staged {
		header += " · STAGED"
	}
	if view.TradingLocked {
		header += " · trading locked"
	}
	accent.Println(header)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Code", "Item", "Price")
	for _, it := range view.Items {
		table.Append(it.Code, it.Name, formatCash(it.Price))
	}
	table.Render()
}

func renderOdds(scope string, odds map[string]int) {
	if scope == "owner" {
		accent.Println("Rise probability (full history)")
	} else {
		accent.Println("Rise probability (through last year)")
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Code", "Up %")
	for _, code := range market.ItemCodes {
		if p, ok := odds[code]; ok {
			table.Append(code, strconv.Itoa(p))
		}
	}
	table.Render()
}

func renderPortfolio(pf *market.Portfolio) {
	label := pf.ParticipantID
	if pf.Frozen {
		label += " (frozen)"
	}
	if pf.Eliminated {
		label += fmt.Sprintf(" (eliminated year %d)", pf.EliminationYear)
	}
	accent.Println(label)
	neutral.Println("Cash: " + formatCash(pf.Cash))

	codes := make([]string, 0, len(pf.Holdings))
	for code, units := range pf.Holdings {
		if units > 0 {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		printInfo("No holdings.")
		return
	}
	sort.Strings(codes)
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Code", "Units")
	for _, code := range codes {
		table.Append(code, strconv.FormatInt(pf.Holdings[code], 10))
	}
	table.Render()
}

func renderTrade(label string, res *game.TradeResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Code", "Requested", "Filled", "Price", "Amount")
	for _, line := range res.Lines {
		table.Append(
			line.Code,
			strconv.FormatInt(line.Requested, 10),
			strconv.FormatInt(line.Filled, 10),
			formatCash(line.Price),
			formatCash(line.Amount),
		)
	}
	table.Render()
	if res.TotalCost > 0 {
		printSuccess(fmt.Sprintf("%s for %s. Cash: %s.", label, formatCash(res.TotalCost), formatCash(res.Cash)))
	} else {
		printSuccess(fmt.Sprintf("%s for %s. Cash: %s.", label, formatCash(res.TotalIncome), formatCash(res.Cash)))
	}
}

func renderStandings(rows []game.StandingRow) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Participant", "Cash", "Holdings", "Total")
	for i, row := range rows {
		name := row.ParticipantID
		if row.Eliminated {
			name += " ✗"
		}
		table.Append(
			strconv.Itoa(i+1),
			name,
			formatCash(row.Cash),
			formatCash(row.HoldingsValue),
			formatCash(row.TotalCash),
		)
	}
	table.Render()
}

func renderRanking(rank *game.FinalRanking) {
	accent.Println("Final ranking (" + string(rank.Policy) + " policy)")
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Rank", "Participant", "Cash", "Status")
	for _, row := range rank.Rows {
		status := "survived"
		if row.Eliminated {
			status = fmt.Sprintf("out year %d", row.EliminationYear)
		}
		table.Append(strconv.Itoa(row.Rank), row.ParticipantID, formatCash(row.Cash), status)
	}
	table.Render()
	if len(rank.TopTie) > 1 {
		printWarn("Tie for first place: " + strings.Join(rank.TopTie, ", "))
	}
}

func renderYearHistory(years []*market.YearChange) {
	if len(years) == 0 {
		printInfo("No year changes recorded.")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Year", "Source", "Changes")
	for _, yc := range years {
		source := "manual"
		if yc.Meta != nil {
			source = yc.Meta.Source
		}
		parts := make([]string, 0, len(market.ItemCodes))
		for _, code := range market.ItemCodes {
			if pct, ok := yc.Changes[code]; ok {
				parts = append(parts, fmt.Sprintf("%s %+d%%", code, pct))
			}
		}
		table.Append(strconv.Itoa(yc.Year), source, strings.Join(parts, " "))
	}
	table.Render()
}

func renderDraw(draw *market.GeneratedYear) {
	accent.Printf("Draw for year %d\n", draw.Year)
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Code", "Item", "Up %", "Roll", "Band", "Change")
	for _, row := range draw.Rows {
		band := string(row.Group)
		if row.Forced {
			band += " (forced)"
		}
		table.Append(
			row.Code,
			row.Name,
			strconv.Itoa(row.UpProbability),
			strconv.Itoa(row.Rand),
			band,
			fmt.Sprintf("%+d%%", row.PercentChange),
		)
	}
	table.Render()
	if draw.ETU.Warn {
		printWarn(fmt.Sprintf("Trend check: %d of %d decisive items went against the odds.",
			draw.ETU.Mismatch, draw.ETU.Eligible))
	}
}

func renderStage(res *game.StageResult) {
	accent.Printf("Year %d staged\n", res.Year)
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Code", "Item", "From", "To", "Change")
	for _, move := range res.Moves {
		table.Append(
			move.Code,
			move.Name,
			formatCash(move.From),
			formatCash(move.To),
			fmt.Sprintf("%+d%%", move.PercentChange),
		)
	}
	table.Render()
}

func renderCut(res *game.CutResult) {
	danger.Printf("Year %d cut\n", res.Year)
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Order", "Participant", "Cash")
	for _, entry := range res.Eliminated {
		table.Append(strconv.Itoa(entry.Order), entry.ParticipantID, formatCash(entry.Cash))
	}
	table.Render()
}
