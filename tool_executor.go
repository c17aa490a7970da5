package copilot

import (
	"context"
	"sync"
)

// executeTools dispatches every call of a round concurrently. Each call is
// reported on completion; the returned results are in call order regardless
// of completion order.
func (c *Conversation) executeTools(ctx context.Context, epoch uint64, assistantIdx int, calls []ToolCall) []ToolResult {
	type item struct {
		idx int
		res ToolResult
	}

	out := make(chan item, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Go(func() {
			select {
			case <-ctx.Done():
				res := interruptedToolResult(call)
				c.finishToolCall(epoch, res)
				out <- item{idx: i, res: res}
				return
			default:
			}

			res := c.invoker.CallTool(ctx, call)
			if res.IsError && ctx.Err() != nil {
				res = interruptedToolResult(call)
			}
			c.finishToolCall(epoch, res)
			out <- item{idx: i, res: res}
		})
	}

	wg.Wait()
	close(out)

	results := make([]ToolResult, len(calls))
	for it := range out {
		results[it.idx] = it.res
	}
	c.logger.Debug("tool round finished", "assistant_index", assistantIdx, "calls", len(calls))
	return results
}

func interruptedToolResult(call ToolCall) ToolResult {
	return ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		IsError: true,
		Text:    "user interrupted the tool call",
	}
}
