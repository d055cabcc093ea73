package window

// Status classifies context utilization for the caller's indicator.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Stats reports the token composition of a built context window, or of a
// conversation's stored state when produced by the stats query.
type Stats struct {
	SystemTokens       int     `json:"system_tokens"`
	SummaryTokens      int     `json:"summary_tokens"`
	RecentTokens       int     `json:"recent_tokens"`
	UsedTokens         int     `json:"used_tokens"`
	MaxTokens          int     `json:"max_tokens"`
	AvailableTokens    int     `json:"available_tokens"`
	UtilizationPercent float64 `json:"utilization_percent"`
	Status             Status  `json:"status"`

	// Stored-state counters, independent of what fit into the window.
	TotalStoredTokens  int `json:"total_stored_tokens"`
	TotalMessages      int `json:"total_messages"`
	SummarizedMessages int `json:"summarized_messages"`
}

// ComputeStatus classifies used/max utilization against the configured
// warning and critical percentages.
func ComputeStatus(used, max int, warningPct, criticalPct float64) (float64, Status) {
	if max <= 0 {
		return 0, StatusHealthy
	}
	pct := float64(used) / float64(max) * 100
	if pct > 100 {
		pct = 100
	}
	switch {
	case pct >= criticalPct:
		return pct, StatusCritical
	case pct >= warningPct:
		return pct, StatusWarning
	default:
		return pct, StatusHealthy
	}
}
