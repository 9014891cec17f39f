package domain

// Document is one immutable chunk of corpus text, created at load time.
type Document struct {
	ID     string
	Title  string
	URL    string
	Text   string
	Locale string
}

// Snippet is a single retrieval result, produced per query.
type Snippet struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}
