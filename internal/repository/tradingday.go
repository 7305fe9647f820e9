package repository

import "time"

// Trading days roll over at 17:00 UTC (12:00 EST).
const tradingDayCutoff = 17 * time.Hour

// TradingDay returns the trading day (YYYY-MM-DD) for a given timestamp.
func TradingDay(ts time.Time) string {
	return TradingDayStart(ts).Format("2006-01-02")
}

// TradingDayStart returns the UTC instant at which ts's trading day began.
func TradingDayStart(ts time.Time) time.Time {
	utc := ts.UTC()
	start := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).Add(tradingDayCutoff)
	if utc.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}
