package models

import "github.com/prudhvinik1/cardsync/internal/replication"

type PullRequest struct {
	Checkpoint *replication.Checkpoint `json:"checkpoint"`
	Limit      int                     `json:"limit"`
}

type PullResponse struct {
	Documents  []replication.Document  `json:"documents"`
	Checkpoint *replication.Checkpoint `json:"checkpoint"`
}

// PushRow is one client write. AssumedMasterState is the server state the
// client based its change on, nil for a document it believes is new.
type PushRow struct {
	NewDocumentState   replication.Document `json:"newDocumentState"`
	AssumedMasterState replication.Document `json:"assumedMasterState,omitempty"`
}
