package reporting

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"evm-swap-bot/internal/domain"
)

// RenderCSV renders receipts as a CSV string, one row per receipt.
func RenderCSV(receipts []*domain.ExecutionReceipt) string {
	var sb strings.Builder

	sb.WriteString("order_id,wallet,token_in,token_out,aggregator,success,tx_hash,")
	sb.WriteString("amount_in,realized_out,realized_gas_wei,failure_reason,finished_at\n")

	for _, r := range receipts {
		txHash := ""
		if r.Submitted() {
			txHash = r.TxHash.Hex()
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%t,%s,%s,%s,%s,%s,%s\n",
			r.OrderID.String(),
			r.Wallet.Hex(),
			r.TokenIn.Hex(),
			r.TokenOut.Hex(),
			r.Aggregator,
			r.Success,
			txHash,
			csvBig(r.AmountIn),
			csvBig(r.RealizedOut),
			csvBig(r.RealizedGasCost),
			csvQuote(r.FailureReason),
			r.FinishedAt.Format(time.RFC3339),
		))
	}

	return sb.String()
}

func csvBig(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// csvQuote escapes a free-form field. Failure reasons can carry commas.
func csvQuote(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, ",\"\n") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}
