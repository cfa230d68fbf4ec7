package models

// Match is a single search hit: a stored image and its exact distance to the query.
type Match struct {
	Image       *Image  `json:"image"`
	SignatureID int64   `json:"signature_id"`
	Distance    float64 `json:"distance"`
	SharedWords int     `json:"shared_words"`
	Rank        int     `json:"rank"`
}

// SearchResponse is the response for a search request.
// Matches are ordered by ascending distance, ties by image ID.
type SearchResponse struct {
	Query   string   `json:"query"`
	Matches []*Match `json:"matches"`
	// Candidates is the number of signatures that shared at least one word with the query.
	Candidates int `json:"candidates"`
	// Skipped counts candidates dropped because they could not be fetched or decoded.
	Skipped int `json:"skipped,omitempty"`
	// Truncated is set when the candidate cap or the re-rank timeout cut the search short.
	Truncated bool  `json:"truncated,omitempty"`
	QueryTime int64 `json:"query_time_ms"`
}
