package notes

import "time"

// Note is a single note document. Modified and Size are filled from the
// container listing and are nil when the server does not publish them.
type Note struct {
	ID       string     `json:"id" yaml:"id"`
	Title    string     `json:"title" yaml:"title"`
	Subject  string     `json:"subject" yaml:"subject"`
	Content  string     `json:"content" yaml:"content"`
	Date     string     `json:"date" yaml:"date"`
	Modified *time.Time `json:"modified,omitempty" yaml:"modified,omitempty"`
	Size     *int64     `json:"size,omitempty" yaml:"size,omitempty"`
}

// Entry is one member of a container listing.
type Entry struct {
	URL      string
	Modified *time.Time
	Size     *int64
}

// ListResult is a best-effort listing. Failed holds the member URLs that
// could not be fetched or parsed, in listing order.
type ListResult struct {
	Notes  []Note   `json:"notes" yaml:"notes"`
	Failed []string `json:"failed,omitempty" yaml:"failed,omitempty"`
}
