package responses

import (
	"poster-api/internal/domain/history"
	"poster-api/internal/domain/poster"
	"poster-api/internal/domain/share"
)

// CreditsResponse reports the caller's current balance.
type CreditsResponse struct {
	Credits int `json:"credits"`
}

// GenerateResponse reports one successful generation.
type GenerateResponse struct {
	URL              string `json:"url"`
	SK               string `json:"sk"`
	RemainingCredits int    `json:"remaining_credits"`
	ExpiresIn        int    `json:"expires_in"`
}

// BuildGenerateResponse creates the response from a generation result.
func BuildGenerateResponse(result *poster.Result, expiresIn int) *GenerateResponse {
	return &GenerateResponse{
		URL:              result.URL,
		SK:               result.SK,
		RemainingCredits: result.RemainingCredits,
		ExpiresIn:        expiresIn,
	}
}

// HistoryListResponse is one page of history entries.
type HistoryListResponse struct {
	Items      []history.ListItem `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// FeaturedResponse is the current featured entry, all fields empty when none.
type FeaturedResponse struct {
	URL string `json:"url"`
	SK  string `json:"sk"`
}

// BuildFeaturedResponse creates the response from a featured lookup.
func BuildFeaturedResponse(item *history.FeaturedItem) *FeaturedResponse {
	if item == nil {
		return &FeaturedResponse{}
	}
	return &FeaturedResponse{URL: item.URL, SK: item.SK}
}

// ShareCreateResponse reports a freshly minted share link.
type ShareCreateResponse struct {
	ShareID  string `json:"share_id"`
	ShareURL string `json:"share_url"`
}

// BuildShareCreateResponse creates the response from a minted link.
func BuildShareCreateResponse(created *share.Created) *ShareCreateResponse {
	return &ShareCreateResponse{ShareID: created.ShareID, ShareURL: created.ShareURL}
}

// ShareResolveResponse is the public view of a shared poster.
type ShareResolveResponse struct {
	URL       string `json:"url"`
	Prompt    string `json:"prompt"`
	CreatedAt string `json:"created_at"`
}

// BuildShareResolveResponse creates the response from a resolved link.
func BuildShareResolveResponse(resolved *share.Resolved) *ShareResolveResponse {
	return &ShareResolveResponse{
		URL:       resolved.URL,
		Prompt:    resolved.Prompt,
		CreatedAt: resolved.CreatedAt,
	}
}
