package aianalyzer

import (
	"fmt"
	"strings"

	"github.com/aristath/finintel/internal/domain"
)

// bondSectorMarkers flag fixed-income sectors the pre-filter treats as
// inherently low conflict-of-interest risk (spec §4.6).
var bondSectorMarkers = []string{"bond", "treasury", "municipal", "note", "bill"}

// fundNameMarkers flag company names that indicate a pooled/index vehicle
// rather than a single-issuer equity.
var fundNameMarkers = []string{"etf", "fund", "index", "ishares", "vanguard", "spdr"}

// LowRiskFilter evaluates the pre-filter rules that bypass the LLM entirely
// for trades with no plausible conflict-of-interest signal (spec §4.6).
type LowRiskFilter struct {
	etfWhitelist map[string]bool
}

// NewLowRiskFilter constructs a LowRiskFilter over a known-ETF ticker set.
func NewLowRiskFilter(etfWhitelist map[string]bool) *LowRiskFilter {
	return &LowRiskFilter{etfWhitelist: etfWhitelist}
}

// TradeContext is the subset of trade/company fields the pre-filter inspects.
type TradeContext struct {
	Ticker      string
	TradeType   domain.TradeType
	CompanyName string
	Sector      string
}

// Evaluate returns a non-nil *TradeAnalysisResult when the trade is
// low-risk by inspection, in which case the caller must not call the LLM.
func (f *LowRiskFilter) Evaluate(t TradeContext) *TradeAnalysisResult {
	if reason, ok := f.lowRiskReason(t); ok {
		return &TradeAnalysisResult{
			ConflictScore:   0.0,
			ConfidenceScore: 1.0,
			Reasoning:       fmt.Sprintf("Auto-filtered: %s", reason),
			RiskPattern:     domain.RiskNoRelationship,
		}
	}
	return nil
}

func (f *LowRiskFilter) lowRiskReason(t TradeContext) (string, bool) {
	if t.TradeType != domain.TradePurchase && t.TradeType != domain.TradeSale {
		return "non-investment transaction type", true
	}
	if f.etfWhitelist[strings.ToUpper(t.Ticker)] {
		return fmt.Sprintf("Known ETF ticker: %s", strings.ToUpper(t.Ticker)), true
	}
	lowerCompany := strings.ToLower(t.CompanyName)
	for _, marker := range fundNameMarkers {
		if strings.Contains(lowerCompany, marker) {
			return fmt.Sprintf("fund-like company name (%s)", marker), true
		}
	}
	lowerSector := strings.ToLower(t.Sector)
	for _, marker := range bondSectorMarkers {
		if strings.Contains(lowerSector, marker) {
			return fmt.Sprintf("fixed-income sector (%s)", marker), true
		}
	}
	return "", false
}
