package solana

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/itchyny/gojq"
)

// holdingProjection flattens a jsonParsed SPL token account into the fields
// TokenHolding needs.
const holdingProjection = `.parsed.info | {
	mint: .mint,
	owner: .owner,
	amount: (.tokenAmount.amount // "0"),
	decimals: (.tokenAmount.decimals // 0),
	ui_amount: (.tokenAmount.uiAmountString // "0")
}`

var holdingQuery = mustCompileJQ(holdingProjection)

func mustCompileJQ(src string) *gojq.Code {
	query, err := gojq.Parse(src)
	if err != nil {
		panic(fmt.Sprintf("invalid jq query %q: %v", src, err))
	}
	code, err := gojq.Compile(query)
	if err != nil {
		panic(fmt.Sprintf("failed to compile jq query %q: %v", src, err))
	}
	return code
}

// parseHolding converts the raw jsonParsed account data of a token account into a TokenHolding.
func parseHolding(account string, raw json.RawMessage) (*TokenHolding, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("account %s: empty account data", account)
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("account %s: failed to decode account data: %w", account, err)
	}

	iter := holdingQuery.Run(data)
	v, ok := iter.Next()
	if !ok {
		return nil, fmt.Errorf("account %s: no parsed token info", account)
	}
	if err, isErr := v.(error); isErr {
		return nil, fmt.Errorf("account %s: %w", account, err)
	}

	fields, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("account %s: unexpected parsed info %T", account, v)
	}

	holding := &TokenHolding{Account: account}
	holding.Mint, _ = fields["mint"].(string)
	holding.Owner, _ = fields["owner"].(string)

	amountStr, _ := fields["amount"].(string)
	amount, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("account %s: invalid token amount %q: %w", account, amountStr, err)
	}
	holding.Amount = amount

	switch d := fields["decimals"].(type) {
	case float64:
		holding.Decimals = uint8(d)
	case int:
		holding.Decimals = uint8(d)
	}

	uiStr, _ := fields["ui_amount"].(string)
	if ui, err := strconv.ParseFloat(uiStr, 64); err == nil {
		holding.UIAmount = ui
	}

	if holding.Mint == "" {
		return nil, fmt.Errorf("account %s: parsed info has no mint", account)
	}

	return holding, nil
}
