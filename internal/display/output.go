package display

// Attachment positions.
const (
	AttachBefore = "before"
	AttachAfter  = "after"
	AttachBoth   = "both"
)

// Output is the rendered result of one display.
type Output struct {
	View    string `json:"view"`
	Display string `json:"display"`
	DomID   string `json:"dom_id"`
	Title   string `json:"title,omitempty"`

	Header  []string       `json:"header,omitempty"`
	Footer  []string       `json:"footer,omitempty"`
	Empty   []string       `json:"empty,omitempty"`
	Exposed *ExposedOutput `json:"exposed,omitempty"`

	Style   string        `json:"style"`
	Columns []Column      `json:"columns,omitempty"`
	Rows    []Row         `json:"rows,omitempty"`
	Summary []SummaryItem `json:"summary,omitempty"`
	// Body and ContentType carry serialized styles.
	Body        string `json:"body,omitempty"`
	ContentType string `json:"content_type,omitempty"`

	Pager *PagerOutput `json:"pager,omitempty"`

	AttachmentBefore []*Output `json:"attachment_before,omitempty"`
	AttachmentAfter  []*Output `json:"attachment_after,omitempty"`
}

// Column is a table header cell.
type Column struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	// Active marks the column the table is sorted by.
	Active bool   `json:"active,omitempty"`
	Order  string `json:"order,omitempty"`
}

// Row is one rendered result row.
type Row struct {
	Index  int           `json:"index"`
	Fields []FieldOutput `json:"fields"`
}

type FieldOutput struct {
	ID      string `json:"id"`
	Label   string `json:"label,omitempty"`
	Content string `json:"content"`
}

// SummaryItem is one group of a summary listing.
type SummaryItem struct {
	Name     string `json:"name"`
	Argument string `json:"argument"`
	URL      string `json:"url"`
	Count    int    `json:"count"`
}

type PagerOutput struct {
	Type         string `json:"type"`
	CurrentPage  int    `json:"current_page"`
	ItemsPerPage int    `json:"items_per_page"`
	TotalItems   int    `json:"total_items"`
	TotalPages   int    `json:"total_pages"`
	HasPrevious  bool   `json:"has_previous"`
	HasNext      bool   `json:"has_next"`
}

// ExposedOutput describes the exposed form widgets and their input.
type ExposedOutput struct {
	Widgets []Widget `json:"widgets,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

type Widget struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	Value    string `json:"value"`
	Required bool   `json:"required,omitempty"`
}
