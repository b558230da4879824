// Package domain holds the tagged records and closed enums shared across
// the ingestion and analysis core. Types here carry no infrastructure
// dependencies — they are pure data, matching the teacher's layering of a
// domain package beneath store/service code.
package domain

// ArticleType is the closed set of article classifications.
type ArticleType string

const (
	ArticleMarketNews         ArticleType = "MarketNews"
	ArticleTickerNews         ArticleType = "TickerNews"
	ArticleResearchReport     ArticleType = "ResearchReport"
	ArticleEtfChange          ArticleType = "EtfChange"
	ArticleRedditDiscovery    ArticleType = "RedditDiscovery"
	ArticleAlphaResearch      ArticleType = "AlphaResearch"
	ArticleSeekingAlphaSymbol ArticleType = "SeekingAlphaSymbol"
	ArticleEarnings           ArticleType = "Earnings"
	ArticleGeneral            ArticleType = "General"
)

// Sentiment is the closed set of article sentiment labels.
type Sentiment string

const (
	SentimentVeryBullish Sentiment = "VeryBullish"
	SentimentBullish     Sentiment = "Bullish"
	SentimentNeutral     Sentiment = "Neutral"
	SentimentBearish     Sentiment = "Bearish"
	SentimentVeryBearish Sentiment = "VeryBearish"
)

// LogicCheck is the LLM-emitted categorical confidence about whether an
// article is data-backed, neutral, or hype. Gates relationship extraction.
type LogicCheck string

const (
	LogicDataBacked   LogicCheck = "DataBacked"
	LogicHypeDetected LogicCheck = "HypeDetected"
	LogicNeutral      LogicCheck = "Neutral"
)

// MarketRelevance is the LLM's verdict on whether an article concerns markets at all.
type MarketRelevance string

const (
	MarketRelated    MarketRelevance = "MarketRelated"
	NotMarketRelated MarketRelevance = "NotMarketRelated"
)

// Chamber is the legislative chamber of a politician.
type Chamber string

const (
	ChamberHouse  Chamber = "House"
	ChamberSenate Chamber = "Senate"
)

// TradeOwner is who within a politician's household owns the traded asset.
type TradeOwner string

const (
	OwnerSelf      TradeOwner = "Self"
	OwnerSpouse    TradeOwner = "Spouse"
	OwnerDependent TradeOwner = "Dependent"
	OwnerUnknown   TradeOwner = "Unknown"
)

// TradeType is the direction of a congressional trade.
type TradeType string

const (
	TradePurchase TradeType = "Purchase"
	TradeSale     TradeType = "Sale"
)

// AssetType distinguishes equity trades from crypto trades.
type AssetType string

const (
	AssetStock  AssetType = "Stock"
	AssetCrypto AssetType = "Crypto"
)

// RiskPattern is the closed enum describing a trade session's intent.
type RiskPattern string

const (
	RiskConflictBuy       RiskPattern = "ConflictBuy"
	RiskSuspiciousSell    RiskPattern = "SuspiciousSell"
	RiskAggressiveBet     RiskPattern = "AggressiveBet"
	RiskRoutineDivestment RiskPattern = "RoutineDivestment"
	RiskNoRelationship    RiskPattern = "NoRelationship"
	RiskRoutine           RiskPattern = "Routine"
)

// SocialPlatform is the closed set of social-sentiment data sources.
type SocialPlatform string

const (
	PlatformStocktwits SocialPlatform = "stocktwits"
	PlatformReddit     SocialPlatform = "reddit"
)

// JobStatus is the lifecycle status of a JobExecution row.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// ExtractionErrorKind is the closed set of extractor failure reasons.
type ExtractionErrorKind string

const (
	ExtractionPaidSubscription ExtractionErrorKind = "paid_subscription"
	ExtractionTimeout          ExtractionErrorKind = "timeout"
	ExtractionEmpty            ExtractionErrorKind = "empty"
	ExtractionUnknown          ExtractionErrorKind = "unknown"
	// ExtractionHTTPPrefix is prefixed to an HTTP status code, e.g. "http_404".
	ExtractionHTTPPrefix = "http_"
)

// PipelineOutcome is the sum type the article pipeline returns per item,
// replacing the source's exceptions-for-control-flow idiom (see design notes).
type PipelineOutcome string

const (
	OutcomeSaved             PipelineOutcome = "saved"
	OutcomeSkippedBlacklist  PipelineOutcome = "blacklisted"
	OutcomeSkippedDuplicate  PipelineOutcome = "duplicate"
	OutcomeSkippedNonMarket  PipelineOutcome = "non-market"
	OutcomeSkippedBudget     PipelineOutcome = "budget-exhausted"
	OutcomeSkippedPaywall    PipelineOutcome = "paywall-skipped"
	OutcomePlaceholderSaved  PipelineOutcome = "paywall-placeholder"
	OutcomeFailedExtraction  PipelineOutcome = "extraction-failed"
)
