package requests

// GenerateRequest asks for one poster generation.
type GenerateRequest struct {
	Prompt         string `json:"prompt" binding:"required"`
	NegativePrompt string `json:"negative_prompt"`
	AspectRatio    string `json:"aspect_ratio"`
	OutputFormat   string `json:"output_format"`
}

// DeleteEntryRequest identifies one history entry by sort key.
type DeleteEntryRequest struct {
	SK string `json:"sk" binding:"required"`
}

// FeatureRequest marks one history entry as featured.
type FeatureRequest struct {
	SK string `json:"sk" binding:"required"`
}

// ShareCreateRequest mints a share link for one history entry.
type ShareCreateRequest struct {
	SK               string `json:"sk" binding:"required"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}
