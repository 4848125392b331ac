package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *CordonClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *CordonClient) *Handlers {
	return &Handlers{client: client}
}

// HandleListThreats lists recent threat records.
func (h *Handlers) HandleListThreats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListThreats(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list threats: %v", err)), nil
	}

	text, err := formatThreatList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse threats: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleInspectThreat shows a single threat with its freeze state and verdict.
func (h *Handlers) HandleInspectThreat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threatID := req.GetString("threat_id", "")
	if threatID == "" {
		return mcp.NewToolResultError("threat_id is required"), nil
	}

	raw, err := h.client.GetThreat(ctx, threatID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get threat: %v", err)), nil
	}

	text, err := formatThreatDetail(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse threat: %v", err)), nil
	}

	// Verdict is best-effort: threats below the freeze band never get one.
	if analysisRaw, err := h.client.GetAnalysis(ctx, threatID); err == nil {
		if verdict := formatVerdict(analysisRaw); verdict != "" {
			text += "\n" + verdict
		}
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListFrozen lists active frozen calls.
func (h *Handlers) HandleListFrozen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 50)

	raw, err := h.client.ListFrozen(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list frozen calls: %v", err)), nil
	}

	text, err := formatFrozenList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse frozen calls: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandlePendingAnalyses lists analysis requests awaiting a verdict.
func (h *Handlers) HandlePendingAnalyses(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListPending(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list pending analyses: %v", err)), nil
	}

	text, err := formatPendingList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse pending analyses: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleSubmitVerdict submits an analyst verdict for a pending threat.
func (h *Handlers) HandleSubmitVerdict(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threatID := req.GetString("threat_id", "")
	if threatID == "" {
		return mcp.NewToolResultError("threat_id is required"), nil
	}
	action := req.GetString("suggested_action", "")
	if action == "" {
		return mcp.NewToolResultError("suggested_action is required"), nil
	}
	analysis := req.GetString("analysis", "")
	isCritical := req.GetBool("is_critical", false)

	_, err := h.client.SubmitAnalysis(ctx, threatID, analysis, action, isCritical)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Verdict submission failed: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Verdict recorded for threat %s\n", threatID)
	fmt.Fprintf(&sb, "Suggested action: %s\n", action)
	if isCritical {
		sb.WriteString("Severity: escalated to CRITICAL (self-resolution blocked)\n")
	}
	sb.WriteString("\nThe initiator or owner can now resolve the frozen call.")

	return mcp.NewToolResultText(sb.String()), nil
}

// HandleResolveThreat resolves a frozen call with owner authority.
func (h *Handlers) HandleResolveThreat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threatID := req.GetString("threat_id", "")
	if threatID == "" {
		return mcp.NewToolResultError("threat_id is required"), nil
	}
	action := req.GetString("action", "")
	if action == "" {
		return mcp.NewToolResultError("action is required"), nil
	}

	raw, err := h.client.OverrideThreat(ctx, threatID, action)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Resolution failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatResolution(raw, threatID)), nil
}

// HandleGatewayStats returns gateway-wide protection counters.
func (h *Handlers) HandleGatewayStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}

	text, err := formatStats(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse stats: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

type threatInfo struct {
	ThreatID     string `json:"threatId"`
	Caller       string `json:"caller"`
	Target       string `json:"target"`
	Payload      string `json:"payload"`
	Value        string `json:"value"`
	Unit         uint64 `json:"unit"`
	At           string `json:"at"`
	Level        string `json:"level"`
	VulnType     string `json:"vulnType"`
	Heuristic    string `json:"heuristic"`
	Reason       string `json:"reason"`
	FreezeExpiry uint64 `json:"freezeExpiry"`
	IsMitigated  bool   `json:"isMitigated"`
}

func formatThreatList(raw json.RawMessage) (string, error) {
	var resp struct {
		Threats []threatInfo `json:"threats"`
		Count   int          `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected threats response format")
	}
	if len(resp.Threats) == 0 {
		return "No threats recorded.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d threat(s):\n\n", len(resp.Threats))
	for i, t := range resp.Threats {
		fmt.Fprintf(&sb, "%d. %s [%s/%s]\n", i+1, t.ThreatID, t.Level, t.VulnType)
		fmt.Fprintf(&sb, "   Caller: %s -> Target: %s\n", t.Caller, t.Target)
		fmt.Fprintf(&sb, "   %s\n", t.Reason)
		if t.IsMitigated {
			sb.WriteString("   Mitigated: yes\n")
		}
		if i < len(resp.Threats)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatThreatDetail(raw json.RawMessage) (string, error) {
	var resp struct {
		Threat threatInfo `json:"threat"`
		Status string     `json:"status"`
		Frozen *struct {
			Initiator    string `json:"initiator"`
			FrozenAtUnit uint64 `json:"frozenAtUnit"`
			FreezeExpiry uint64 `json:"freezeExpiry"`
			Executed     bool   `json:"executed"`
			Cancelled    bool   `json:"cancelled"`
		} `json:"frozenCall"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected threat response format")
	}
	t := resp.Threat

	var sb strings.Builder
	fmt.Fprintf(&sb, "Threat %s\n", t.ThreatID)
	fmt.Fprintf(&sb, "  Level: %s | Type: %s\n", t.Level, t.VulnType)
	fmt.Fprintf(&sb, "  Heuristic: %s\n", t.Heuristic)
	fmt.Fprintf(&sb, "  Reason: %s\n", t.Reason)
	fmt.Fprintf(&sb, "  Caller: %s\n", t.Caller)
	fmt.Fprintf(&sb, "  Target: %s\n", t.Target)
	fmt.Fprintf(&sb, "  Value at risk: %s\n", t.Value)
	fmt.Fprintf(&sb, "  Detected at unit %d (%s)\n", t.Unit, t.At)
	if len(t.Payload) >= 8 {
		fmt.Fprintf(&sb, "  Selector: 0x%s\n", t.Payload[:8])
	}
	if t.IsMitigated {
		sb.WriteString("  Mitigated: yes\n")
	}

	if resp.Frozen != nil {
		fmt.Fprintf(&sb, "\nFrozen call: %s\n", resp.Status)
		fmt.Fprintf(&sb, "  Initiator: %s\n", resp.Frozen.Initiator)
		fmt.Fprintf(&sb, "  Frozen at unit %d, expires at unit %d\n",
			resp.Frozen.FrozenAtUnit, resp.Frozen.FreezeExpiry)
	}

	return sb.String(), nil
}

// formatVerdict renders an existing analyst verdict, or "" when the
// analysis is still pending.
func formatVerdict(raw json.RawMessage) string {
	var resp struct {
		Analysis struct {
			Completed       bool   `json:"completed"`
			AnalysisText    string `json:"analysisText"`
			SuggestedAction string `json:"suggestedAction"`
			IsCritical      bool   `json:"isCritical"`
		} `json:"analysis"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || !resp.Analysis.Completed {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Analyst verdict:\n")
	fmt.Fprintf(&sb, "  Suggested action: %s\n", resp.Analysis.SuggestedAction)
	if resp.Analysis.IsCritical {
		sb.WriteString("  Critical: yes\n")
	}
	if resp.Analysis.AnalysisText != "" {
		fmt.Fprintf(&sb, "  Analysis: %s\n", resp.Analysis.AnalysisText)
	}
	return sb.String()
}

func formatFrozenList(raw json.RawMessage) (string, error) {
	var resp struct {
		Frozen []struct {
			ThreatID     string `json:"threatId"`
			Initiator    string `json:"initiator"`
			FrozenAtUnit uint64 `json:"frozenAtUnit"`
			FreezeExpiry uint64 `json:"freezeExpiry"`
			Status       string `json:"status"`
		} `json:"frozen"`
		Unit uint64 `json:"unit"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected frozen response format")
	}
	if len(resp.Frozen) == 0 {
		return "No calls are currently frozen.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d frozen call(s) at unit %d:\n\n", len(resp.Frozen), resp.Unit)
	for i, fc := range resp.Frozen {
		fmt.Fprintf(&sb, "%d. %s [%s]\n", i+1, fc.ThreatID, fc.Status)
		fmt.Fprintf(&sb, "   Initiator: %s\n", fc.Initiator)
		fmt.Fprintf(&sb, "   Frozen at unit %d, expires at unit %d\n", fc.FrozenAtUnit, fc.FreezeExpiry)
	}
	return sb.String(), nil
}

func formatPendingList(raw json.RawMessage) (string, error) {
	var resp struct {
		Pending []struct {
			ThreatID    string `json:"threatId"`
			Target      string `json:"target"`
			Caller      string `json:"caller"`
			RequestedAt string `json:"requestedAt"`
		} `json:"pending"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected pending response format")
	}
	if len(resp.Pending) == 0 {
		return "No analyses pending. The queue is clear.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d analysis request(s) awaiting a verdict:\n\n", len(resp.Pending))
	for i, p := range resp.Pending {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, p.ThreatID)
		fmt.Fprintf(&sb, "   Caller: %s -> Target: %s\n", p.Caller, p.Target)
		fmt.Fprintf(&sb, "   Requested: %s\n", p.RequestedAt)
	}
	sb.WriteString("\nUse inspect_threat for detail, then submit_verdict.")
	return sb.String(), nil
}

func formatResolution(raw json.RawMessage, threatID string) string {
	// A simulate action answers 202 with a status instead of a resolution.
	var statusResp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &statusResp); err == nil && statusResp.Status == "simulation_requested" {
		return fmt.Sprintf("Re-analysis requested for threat %s. "+
			"A fresh entry will appear in pending_analyses; the call stays frozen.", threatID)
	}

	var resp struct {
		Resolution struct {
			Executed      bool        `json:"executed"`
			Cancelled     bool        `json:"cancelled"`
			Result        []byte      `json:"result"`
			LossPrevented json.Number `json:"lossPrevented"`
		} `json:"resolution"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Sprintf("Threat %s resolved.", threatID)
	}

	var sb strings.Builder
	switch {
	case resp.Resolution.Executed:
		fmt.Fprintf(&sb, "Threat %s resolved: call executed against its target.\n", threatID)
		if len(resp.Resolution.Result) > 0 {
			fmt.Fprintf(&sb, "Result: 0x%x\n", resp.Resolution.Result)
		}
	case resp.Resolution.Cancelled:
		fmt.Fprintf(&sb, "Threat %s resolved: call reverted and permanently cancelled.\n", threatID)
		if lp := resp.Resolution.LossPrevented.String(); lp != "" && lp != "0" {
			fmt.Fprintf(&sb, "Loss prevented: %s\n", lp)
		}
	default:
		fmt.Fprintf(&sb, "Threat %s resolved.\n", threatID)
	}
	return sb.String()
}

func formatStats(raw json.RawMessage) (string, error) {
	var resp struct {
		Stats struct {
			ThreatsDetected  int64  `json:"threatsDetected"`
			ThreatsMitigated int64  `json:"threatsMitigated"`
			CallsForwarded   int64  `json:"callsForwarded"`
			LossPrevented    string `json:"lossPrevented"`
		} `json:"stats"`
		Unit uint64 `json:"unit"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected stats response format")
	}

	var sb strings.Builder
	sb.WriteString("Gateway statistics:\n")
	fmt.Fprintf(&sb, "  Calls forwarded:   %d\n", resp.Stats.CallsForwarded)
	fmt.Fprintf(&sb, "  Threats detected:  %d\n", resp.Stats.ThreatsDetected)
	fmt.Fprintf(&sb, "  Threats mitigated: %d\n", resp.Stats.ThreatsMitigated)
	fmt.Fprintf(&sb, "  Loss prevented:    %s\n", resp.Stats.LossPrevented)
	fmt.Fprintf(&sb, "  Current unit:      %d\n", resp.Unit)
	return sb.String(), nil
}
