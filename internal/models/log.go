package models

import (
	"encoding/json"
	"time"
)

type LogType string

const (
	LogScanning      LogType = "scanning"
	LogAnalysis      LogType = "analysis"
	LogTrade         LogType = "trade"
	LogError         LogType = "error"
	LogSystem        LogType = "system"
	LogPrompt        LogType = "prompt"
	LogResponse      LogType = "response"
	LogBalanceUpdate LogType = "balance_update"
)

// LogEntry is one row of the append-only audit trail.
type LogEntry struct {
	ID            string          `json:"id"`
	Type          LogType         `json:"type"`
	Content       string          `json:"content"`
	RawData       json.RawMessage `json:"raw_data"`
	JobID         *string         `json:"job_id"`
	CorrelationID *string         `json:"thread_id"`
	CreatedAt     time.Time       `json:"created_at"`
}
