package domain

import "time"

// MarketWindow labels a moment of the trading day.
type MarketWindow struct {
	Label   string
	Trading bool
}

// ClassifyWindow partitions the 24-hour clock into three contiguous bands:
// the afternoon market [16:00, 19:00), the evening market [19:00, 22:00)
// and the closed remainder. Pure and total; gating policy lives with the
// caller.
func ClassifyWindow(now time.Time) MarketWindow {
	switch h := now.Hour(); {
	case h >= 16 && h < 19:
		return MarketWindow{Label: "afternoon_market", Trading: true}
	case h >= 19 && h < 22:
		return MarketWindow{Label: "evening_market", Trading: true}
	default:
		return MarketWindow{Label: "closed", Trading: false}
	}
}
