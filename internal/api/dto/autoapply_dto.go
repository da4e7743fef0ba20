package dto

type ListHistoryRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type HistoryEntryDTO struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	JobID      string `json:"job_id,omitempty"`
	Platform   string `json:"platform,omitempty"`
	ListingID  string `json:"listing_id,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
	MatchScore *int   `json:"match_score,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type ListHistoryResponse struct {
	Entries    []HistoryEntryDTO `json:"entries"`
	NextCursor string            `json:"next_cursor,omitempty"`
}
