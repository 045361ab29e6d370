package history

// Entry statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Entry kinds. Entries written before edits existed carry no kind and are
// generations.
const (
	KindGenerate = "GENERATE"
	KindEdit     = "EDIT"
)

// Entry is one generation attempt in a user's history.
type Entry struct {
	PK           string `dynamodbav:"PK" json:"-"`
	SK           string `dynamodbav:"SK" json:"sk"`
	CreatedAt    string `dynamodbav:"CreatedAt" json:"created_at"`
	Status       string `dynamodbav:"Status" json:"status"`
	Kind         string `dynamodbav:"Kind,omitempty" json:"kind,omitempty"`
	Prompt       string `dynamodbav:"Prompt" json:"prompt"`
	AspectRatio  string `dynamodbav:"AspectRatio" json:"aspect_ratio"`
	OutputFormat string `dynamodbav:"OutputFormat" json:"output_format"`
	StorageKey   string `dynamodbav:"StorageKey,omitempty" json:"-"`
	ErrorMessage string `dynamodbav:"ErrorMessage,omitempty" json:"error_message,omitempty"`
	Deleted      bool   `dynamodbav:"Deleted" json:"-"`
	Featured     bool   `dynamodbav:"Featured" json:"featured"`
	Expiry       int64  `dynamodbav:"Expiry,omitempty" json:"-"`
}

// ListItem is an Entry enriched with a freshly signed access URL. URLs are
// minted per read and never persisted.
type ListItem struct {
	Entry
	URL string `json:"url,omitempty"`
}

// FeaturedItem is the current featured entry's signed URL and sort key.
type FeaturedItem struct {
	URL string `json:"url"`
	SK  string `json:"sk"`
}
