package debate

import (
	"github.com/jitc-genai/conformance/backend/internal/analysis/verdict"
)

// ChainEntry is one agent's turn in a sequential debate chain.
type ChainEntry struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Response  string `json:"response"`
}

// CheckResult is the combined outcome of a compliance check. Details is
// keyed by the agent's position in the request, while DebateResults is
// keyed by agent display name. The two keying conventions are deliberate
// and load-bearing: existing consumers depend on each shape, so they are
// not unified.
type CheckResult struct {
	OverallCompliance bool                   `json:"overall_compliance"`
	Details           map[int]verdict.Result `json:"details"`
	DebateResults     map[string]string      `json:"debate_results,omitempty"`
	SessionID         string                 `json:"session_id,omitempty"`
}

// SequenceResult is the outcome of one sequential debate run.
type SequenceResult struct {
	SessionID string       `json:"session_id"`
	Chain     []ChainEntry `json:"debate_chain"`
}
