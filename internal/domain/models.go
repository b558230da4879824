package domain

import "time"

// Article is the central ingested entity: a news item, RSS post, research
// report, or similar, enriched with AI-derived fields.
type Article struct {
	ID               string
	Title            string
	URL              string
	Content          string
	Summary          string
	Source           string
	PublishedAt      time.Time
	FetchedAt        time.Time
	ArticleType      ArticleType
	Tickers          []string
	Sector           string
	RelevanceScore   float64
	Embedding        []float32 // nil or len 768
	Claims           []string
	FactCheck        string
	Conclusion       string
	Sentiment        Sentiment
	SentimentScore   float64
	LogicCheck       LogicCheck
	Fund             *string
	ArchiveSubmitted *time.Time
	ArchiveChecked   *time.Time
	ArchiveURL       *string
}

// EmbeddingDimension is the fixed dense-vector width declared by the LLM service.
const EmbeddingDimension = 768

// Relationship is a directed, typed edge between two tickers extracted from
// an article's claims, feeding a downstream graph store.
type Relationship struct {
	SourceTicker    string
	TargetTicker    string
	RelationshipType string
	Confidence      float64
	SourceArticleID string
	DetectedAt      time.Time
}

// DomainHealthRecord tracks per-domain fetch health for auto-blacklisting.
type DomainHealthRecord struct {
	Domain                string
	ConsecutiveFailures    int
	LastFailureReason      string
	LastFailureAt          *time.Time
	LastSuccessAt          *time.Time
	AutoBlacklisted        bool
}

// Politician is a canonical legislator identity.
type Politician struct {
	ID            string
	CanonicalName string
	Aliases       []string
	Party         string
	State         string
	Chamber       Chamber
	IsLeadership  bool // see SPEC_FULL / DESIGN open-question decision
}

// Committee describes a congressional committee and the sectors it oversees.
type Committee struct {
	ID            string
	Name          string
	TargetSectors []string
}

// CommitteeAssignment links a politician to a committee with a title.
type CommitteeAssignment struct {
	PoliticianID string
	CommitteeID  string
	Title        string
}

// CongressTrade is a disclosed trade by a member of Congress.
type CongressTrade struct {
	ID              string
	PoliticianID    string
	Ticker          string
	Chamber         Chamber
	Party           string
	State           string
	Owner           TradeOwner
	TransactionDate time.Time
	DisclosureDate  time.Time
	Type            TradeType
	Amount          string // string range, e.g. "$1,001 - $15,000"
	Price           *float64
	AssetType       AssetType
	Notes           string
}

// TradeAnalysis is the AI-derived conflict-of-interest assessment for one trade.
type TradeAnalysis struct {
	TradeID         string
	ModelUsed       string
	AnalysisVersion int
	ConflictScore   float64
	ConfidenceScore float64
	RiskPattern     RiskPattern
	Reasoning       string
	SessionID       *string
	AnalyzedAt      time.Time
	// ConfidenceDefaulted marks rows where the LLM omitted confidence_score
	// and the 0.75 fallback (spec §4.6) was applied — see design note.
	ConfidenceDefaulted bool
}

// TradeSession groups a politician's trades within a time window for
// session-level AI analysis.
type TradeSession struct {
	ID               string
	PoliticianName   string
	StartDate        time.Time
	EndDate          time.Time
	TradeCount       int
	ConflictScore    float64
	ConfidenceScore  float64
	AISummary        string
	RiskPattern      RiskPattern
	ModelUsed        string
	NeedsAIAnalysis  bool
}

// SocialMetric is one (ticker, platform, window) observation of crowd sentiment.
type SocialMetric struct {
	Ticker              string
	Platform            SocialPlatform
	CreatedAt           time.Time
	Volume              int
	BullBearRatio       *float64
	SentimentLabel      string
	SentimentScore      float64
	RawPosts            []byte // structured JSON, cleared by retention at 14 days
	AnalysisSessionID   *string
}

// JobExecution tracks one run of a scheduled job.
type JobExecution struct {
	ID             string
	JobName        string
	TargetDate     time.Time
	FundName       *string
	Status         JobStatus
	StartedAt      time.Time
	CompletedAt    *time.Time
	DurationMs     *int64
	ErrorMessage   string
	FundsProcessed []string
}

// StaleRunThreshold is how old a `running` JobExecution must be before it's
// considered a crashed execution (spec §3, §4.7).
const StaleRunThreshold = 6 * time.Hour

// RetryQueueEntry is a unit of deferred retry work for a failed job item.
type RetryQueueEntry struct {
	ID             string
	JobName        string
	TargetDate     time.Time
	EntityID       string
	EntityType     string
	FailureReason  string
	Attempts       int
	NextAttemptAt  time.Time
}
