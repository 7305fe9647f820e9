package models

import (
	"encoding/json"
	"time"
)

type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeCompleted TradeStatus = "completed"
	TradeFailed    TradeStatus = "failed"
)

// Terminal reports whether no further status change is allowed.
func (s TradeStatus) Terminal() bool {
	return s == TradeCompleted || s == TradeFailed
}

// TradeDecision is a proposed swap. AmountIn is a decimal string in units of TokenIn.
type TradeDecision struct {
	TokenIn  string `json:"token_in"`
	TokenOut string `json:"token_out"`
	AmountIn string `json:"amount_in"`
}

type TradeRecord struct {
	ID          string          `json:"id"`
	TokenIn     string          `json:"token_in"`
	TokenOut    string          `json:"token_out"`
	AmountIn    string          `json:"amount_in"`
	AmountOut   *string         `json:"amount_out"`
	TxHash      *string         `json:"tx_hash"`
	Status      TradeStatus     `json:"status"`
	JobID       *string         `json:"job_id"`
	RawResponse json.RawMessage `json:"raw_response"`
	TradingDay  string          `json:"trading_day"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TradeUpdate carries the terminal fields written when a pending trade settles.
type TradeUpdate struct {
	Status      TradeStatus
	AmountOut   *string
	TxHash      *string
	JobID       *string
	RawResponse json.RawMessage
}

type TradeStats struct {
	TotalTrades int64      `json:"total_trades"`
	Completed   int64      `json:"completed"`
	Failed      int64      `json:"failed"`
	Pending     int64      `json:"pending"`
	LastTrade   *time.Time `json:"last_trade"`
}

// WinRate is the completed share of settled trades, in percent.
func (s TradeStats) WinRate() float64 {
	settled := s.Completed + s.Failed
	if settled == 0 {
		return 0
	}
	return float64(s.Completed) / float64(settled) * 100
}
