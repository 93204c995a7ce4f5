package message

import (
	"time"

	"siriuschat/internal/tool"
)

// ChatRequest is one conversation turn awaiting a model response. The
// triggering unit is carried for diagnostics only and excluded from any
// equality considerations. Tools, when present, are the only
// capabilities the model may invoke for this request.
type ChatRequest struct {
	Chain     *MessageChain
	Source    string
	Current   *MessageUnit
	Timestamp time.Time
	AtBot     bool
	Tools     []tool.Tool
}

// Tool looks up a registered tool by name.
func (r *ChatRequest) Tool(name string) (tool.Tool, bool) {
	for _, t := range r.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return tool.Tool{}, false
}

// ToolNames lists the names of the request's registered tools.
func (r *ChatRequest) ToolNames() []string {
	names := make([]string, 0, len(r.Tools))
	for _, t := range r.Tools {
		names = append(names, t.Name)
	}
	return names
}
