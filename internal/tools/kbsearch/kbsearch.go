// Package kbsearch exposes the retrieval service as the
// search_knowledge_base tool.
package kbsearch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voicedesk/voicedesk/internal/observe"
	"github.com/voicedesk/voicedesk/internal/retrieval"
	"github.com/voicedesk/voicedesk/internal/tools"
)

// ToolName is the registered tool name.
const ToolName = "search_knowledge_base"

// New builds the knowledge-base search tool over svc. Available to every
// persona; requires no authentication.
func New(svc *retrieval.Service) tools.Tool {
	return tools.Tool{
		Name: ToolName,
		Handler: func(ctx context.Context, sess tools.Session, args json.RawMessage) (tools.Result, error) {
			var params struct {
				Query      string `json:"query"`
				MaxResults int    `json:"max_results"`
			}
			if len(args) > 0 {
				if err := json.Unmarshal(args, &params); err != nil {
					return tools.Result{}, tools.BadArguments("arguments are not a JSON object")
				}
			}
			if params.Query == "" {
				return tools.Result{}, tools.BadArguments("argument 'query' required")
			}

			start := time.Now()
			text, err := svc.Search(ctx, params.Query, params.MaxResults)
			observe.DefaultMetrics().RetrievalDuration.Record(ctx, time.Since(start).Seconds())
			if err != nil {
				return tools.Result{}, err
			}
			return tools.Result{Output: text}, nil
		},
	}
}
