package models

import (
	"time"

	"github.com/facturaIA/textscan-service/internal/capture"
	"github.com/facturaIA/textscan-service/internal/history"
	"github.com/facturaIA/textscan-service/internal/pipeline"
)

// TriggerResponse is returned by POST /api/scan.
type TriggerResponse struct {
	Accepted bool           `json:"accepted"`
	State    pipeline.State `json:"state"`
	Error    string         `json:"error,omitempty"`
}

// StateResponse describes the current pipeline state.
type StateResponse struct {
	State     pipeline.State     `json:"state"`
	LastCycle string             `json:"lastCycle,omitempty"`
	Frames    *capture.SlotStats `json:"frames,omitempty"`
}

// HistoryListResponse is a page of history entries.
type HistoryListResponse struct {
	Entries []history.Entry `json:"entries"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// FrameURLResponse carries a presigned link to an archived frame.
type FrameURLResponse struct {
	CycleID   string    `json:"cycleId"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
