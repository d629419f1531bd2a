package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voicedesk/voicedesk/internal/config"
)

// HandoffToolName is the registered name for transfers to target.
func HandoffToolName(target config.Role) string {
	return "handoff_to_" + string(target)
}

// NewHandoff builds the transfer tool for target. The handler never blocks
// the upstream response: the relay delivers the signal to the browser on its
// own delayed schedule while the model keeps talking.
func NewHandoff(target config.Role) Tool {
	return Tool{
		Name: HandoffToolName(target),
		Handler: func(ctx context.Context, sess Session, args json.RawMessage) (Result, error) {
			var params struct {
				Reason  string `json:"reason"`
				Context string `json:"context"`
			}
			if len(args) > 0 {
				if err := json.Unmarshal(args, &params); err != nil {
					return Result{}, BadArguments("arguments are not a JSON object")
				}
			}
			if params.Reason == "" {
				return Result{}, BadArguments("argument 'reason' required")
			}

			return Result{
				Output: fmt.Sprintf("Transfer to the %s agent has been initiated. "+
					"Briefly tell the caller you are transferring them now.", target),
				Handoff: &HandoffSignal{
					Target:  target,
					Reason:  params.Reason,
					Context: params.Context,
				},
			}, nil
		},
	}
}
