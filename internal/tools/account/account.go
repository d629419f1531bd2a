// Package account wires the backend client into the authenticated account
// tools: balances, details, transactions, card controls, and product
// ownership checks.
package account

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voicedesk/voicedesk/internal/backend"
	"github.com/voicedesk/voicedesk/internal/tools"
)

// Registered tool names.
const (
	ToolBalance            = "get_account_balance"
	ToolDetails            = "get_account_details"
	ToolRecentTransactions = "get_recent_transactions"
	ToolCardDetails        = "get_card_details"
	ToolFreezeCard         = "freeze_card"
	ToolUnfreezeCard       = "unfreeze_card"
	ToolProductOwnership   = "check_product_ownership"
)

// productTypes are the product_type values check_product_ownership accepts.
var productTypes = map[string]struct{}{
	"loan":       {},
	"investment": {},
	"insurance":  {},
}

// RegisterAll registers every account tool on reg, backed by client. All of
// them require an authenticated session.
func RegisterAll(reg *tools.Registry, client *backend.Client) {
	simple := func(name string, call func(ctx context.Context, token string) (string, error)) tools.Tool {
		return tools.Tool{
			Name:         name,
			RequiresAuth: true,
			Handler: func(ctx context.Context, sess tools.Session, _ json.RawMessage) (tools.Result, error) {
				out, err := call(ctx, sess.Identity.Token)
				if err != nil {
					return tools.Result{}, err
				}
				return tools.Result{Output: out}, nil
			},
		}
	}

	reg.Register(simple(ToolBalance, client.AccountBalance))
	reg.Register(simple(ToolDetails, client.AccountDetails))
	reg.Register(simple(ToolCardDetails, client.CardDetails))
	reg.Register(simple(ToolFreezeCard, client.FreezeCard))
	reg.Register(simple(ToolUnfreezeCard, client.UnfreezeCard))
	reg.Register(newTransactions(client))
	reg.Register(newProductOwnership())
}

func newTransactions(client *backend.Client) tools.Tool {
	return tools.Tool{
		Name:         ToolRecentTransactions,
		RequiresAuth: true,
		Handler: func(ctx context.Context, sess tools.Session, args json.RawMessage) (tools.Result, error) {
			var params struct {
				Limit int `json:"limit"`
			}
			if len(args) > 0 {
				if err := json.Unmarshal(args, &params); err != nil {
					return tools.Result{}, tools.BadArguments("arguments are not a JSON object")
				}
			}
			if params.Limit < 0 || params.Limit > backend.MaxTransactionLimit {
				return tools.Result{}, tools.BadArguments("argument 'limit' must be between 1 and %d", backend.MaxTransactionLimit)
			}

			out, err := client.RecentTransactions(ctx, sess.Identity.Token, params.Limit)
			if err != nil {
				return tools.Result{}, err
			}
			return tools.Result{Output: out}, nil
		},
	}
}

// newProductOwnership answers whether the caller holds a loan, investment,
// or insurance product. The account fixture carries none of these, so the
// answer is always a referral to a human specialist; the result is a JSON
// object so the model can branch on should_handoff.
func newProductOwnership() tools.Tool {
	return tools.Tool{
		Name:         ToolProductOwnership,
		RequiresAuth: true,
		Handler: func(ctx context.Context, sess tools.Session, args json.RawMessage) (tools.Result, error) {
			var params struct {
				ProductType string `json:"product_type"`
			}
			if len(args) > 0 {
				if err := json.Unmarshal(args, &params); err != nil {
					return tools.Result{}, tools.BadArguments("arguments are not a JSON object")
				}
			}
			if params.ProductType == "" {
				return tools.Result{}, tools.BadArguments("argument 'product_type' required")
			}
			if _, ok := productTypes[params.ProductType]; !ok {
				return tools.Result{}, tools.BadArguments("argument 'product_type' must be one of loan, investment, insurance")
			}

			out, err := json.Marshal(map[string]any{
				"product_type":   params.ProductType,
				"has_product":    false,
				"should_handoff": true,
				"message": fmt.Sprintf(
					"The customer does not hold a %s product. Offer to connect them with a human %s specialist.",
					params.ProductType, params.ProductType),
			})
			if err != nil {
				return tools.Result{}, fmt.Errorf("account: encode ownership result: %w", err)
			}
			return tools.Result{Output: string(out)}, nil
		},
	}
}
