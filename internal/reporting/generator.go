// Package reporting builds offline trade reports from stored execution
// receipts. It has no coupling with the live pipelines beyond the receipt
// store interface.
package reporting

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/storage"
)

// Generator produces reports from the receipt store.
type Generator struct {
	receipts storage.ReceiptStore
	now      func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a report generator.
func NewGenerator(receipts storage.ReceiptStore) *Generator {
	return &Generator{
		receipts: receipts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report for receipts finished within [start, end].
func (g *Generator) Generate(ctx context.Context, start, end time.Time) (*Report, error) {
	receipts, err := g.receipts.GetByTimeRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load receipts: %w", err)
	}
	return g.build(receipts, start, end), nil
}

// GenerateForWallet restricts the report to one wallet's receipts finished
// within [start, end].
func (g *Generator) GenerateForWallet(ctx context.Context, wallet common.Address, start, end time.Time) (*Report, error) {
	all, err := g.receipts.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("load wallet receipts: %w", err)
	}
	receipts := make([]*domain.ExecutionReceipt, 0, len(all))
	for _, r := range all {
		if r.FinishedAt.Before(start) || r.FinishedAt.After(end) {
			continue
		}
		receipts = append(receipts, r)
	}
	return g.build(receipts, start, end), nil
}

func (g *Generator) build(receipts []*domain.ExecutionReceipt, start, end time.Time) *Report {
	report := &Report{
		GeneratedAt: g.now(),
		PeriodStart: start,
		PeriodEnd:   end,
		Summary: Summary{
			TotalOrders:      len(receipts),
			TotalRealizedOut: new(big.Int),
			TotalGasCostWei:  new(big.Int),
		},
		Receipts: receipts,
	}

	byAggregator := make(map[string]*AggregatorRow)
	byToken := make(map[string]*TokenRow)

	for _, r := range receipts {
		switch {
		case r.Success:
			report.Summary.Executed++
			if r.RealizedOut != nil {
				report.Summary.TotalRealizedOut.Add(report.Summary.TotalRealizedOut, r.RealizedOut)
			}
		case r.Submitted():
			report.Summary.Failed++
		default:
			report.Summary.Aborted++
		}
		if r.RealizedGasCost != nil {
			report.Summary.TotalGasCostWei.Add(report.Summary.TotalGasCostWei, r.RealizedGasCost)
		}

		agg := byAggregator[r.Aggregator]
		if agg == nil {
			agg = &AggregatorRow{Name: r.Aggregator, RealizedOut: new(big.Int)}
			byAggregator[r.Aggregator] = agg
		}
		agg.Orders++
		if r.Success {
			agg.Executed++
			if r.RealizedOut != nil {
				agg.RealizedOut.Add(agg.RealizedOut, r.RealizedOut)
			}
		}

		tokenHex := r.TokenIn.Hex()
		tok := byToken[tokenHex]
		if tok == nil {
			tok = &TokenRow{Token: tokenHex}
			byToken[tokenHex] = tok
		}
		tok.Orders++
		if r.Success {
			tok.Executed++
		}
		if r.Submitted() {
			tok.LastTx = r.TxHash.Hex()
		}

		if !r.Success {
			report.Failures = append(report.Failures, FailureRow{
				OrderID:    r.OrderID.String(),
				Token:      tokenHex,
				Aggregator: r.Aggregator,
				Reason:     r.FailureReason,
				FinishedAt: r.FinishedAt,
			})
		}
	}

	for _, row := range byAggregator {
		report.Aggregators = append(report.Aggregators, *row)
	}
	sort.Slice(report.Aggregators, func(i, j int) bool {
		return report.Aggregators[i].Name < report.Aggregators[j].Name
	})

	for _, row := range byToken {
		report.Tokens = append(report.Tokens, *row)
	}
	sort.Slice(report.Tokens, func(i, j int) bool {
		return report.Tokens[i].Token < report.Tokens[j].Token
	})

	return report
}
