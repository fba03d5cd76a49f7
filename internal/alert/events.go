package alert

// Event type names. Field names in the payloads are part of the external
// contract and must not change.
const (
	EventCycleSummary    = "cycle_summary"
	EventDefconChange    = "defcon_change"
	EventTradeEntry      = "trade_entry"
	EventTradeExit       = "trade_exit"
	EventNewsUpdate      = "news_update"
	EventCommandResponse = "command_response"
)

// Event is a routed notification: a type tag plus its payload.
type Event struct {
	Type    string `json:"event"`
	Payload any    `json:"payload"`
}

// CycleSummary reports one completed cycle.
type CycleSummary struct {
	Defcon      int      `json:"defcon"`
	SignalScore float64  `json:"signal_score"`
	VIX         float64  `json:"vix"`
	Yield10Y    float64  `json:"yield_10y"`
	SP500Pct    float64  `json:"sp500_pct"`
	Holdings    []string `json:"holdings"`
}

// DefconChange reports a level transition.
type DefconChange struct {
	From        int     `json:"from"`
	To          int     `json:"to"`
	SignalScore float64 `json:"signal_score"`
	ReasonCode  string  `json:"reason_code"`
}

// TradeEntry reports a proposed or executed entry.
type TradeEntry struct {
	Symbols []string `json:"symbols"`
	Size    float64  `json:"size"`
	Defcon  int      `json:"defcon"`
	Pending bool     `json:"pending"`
}

// TradeExit reports a closed position.
type TradeExit struct {
	Symbol string  `json:"symbol"`
	Reason string  `json:"reason"`
	PnLPct float64 `json:"pnl_pct"`
}

// TopArticle is the compact article view inside a news update.
type TopArticle struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Urgency string `json:"urgency"`
}

// NewsUpdate reports a fresh news batch.
type NewsUpdate struct {
	Score           float64      `json:"score"`
	CrisisType      string       `json:"crisis_type"`
	SentimentLabel  string       `json:"sentiment_label"`
	ArticleCount    int          `json:"article_count"`
	NewArticleCount int          `json:"new_article_count"`
	BreakingCount   int          `json:"breaking_count"`
	Top             []TopArticle `json:"top"`
}

// CommandResponse reports the outcome of an operator command.
type CommandResponse struct {
	ID     string `json:"id"`
	Verb   string `json:"verb"`
	Result string `json:"result"`
}
