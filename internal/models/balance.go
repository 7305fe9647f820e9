package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BalanceSnapshot struct {
	ID        string                     `json:"id"`
	TotalUSD  decimal.Decimal            `json:"total_usd"`
	Breakdown map[string]decimal.Decimal `json:"breakdown"`
	CreatedAt time.Time                  `json:"created_at"`
}

// Direction of a trend pick.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

type Conviction string

const (
	ConvictionHigh   Conviction = "high"
	ConvictionMedium Conviction = "medium"
	ConvictionLow    Conviction = "low"
)

// TrendPick is one token call extracted from a market scan.
type TrendPick struct {
	Token      string     `json:"token"`
	Direction  Direction  `json:"direction"`
	Conviction Conviction `json:"conviction"`
}
