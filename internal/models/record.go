package models

// ExtractedRecord holds the fields scraped from one product page. A nil field
// means the value could not be found; partial records are valid results.
type ExtractedRecord struct {
	SKU         string   `json:"sku"`
	Retailer    Retailer `json:"retailer"`
	Title       *string  `json:"title"`
	Price       *string  `json:"price"`
	Description *string  `json:"description"`
	ReviewCount *string  `json:"review_count"`
	Rating      *string  `json:"rating"`
}

// Field names used by retailer field specs.
const (
	FieldTitle       = "title"
	FieldPrice       = "price"
	FieldDescription = "description"
	FieldReviewCount = "reviewCount"
	FieldRating      = "rating"
)

// NewRecord builds a record from extracted field values keyed by field name.
func NewRecord(task SkuTask, fields map[string]*string) *ExtractedRecord {
	return &ExtractedRecord{
		SKU:         task.Identifier,
		Retailer:    task.Retailer,
		Title:       fields[FieldTitle],
		Price:       fields[FieldPrice],
		Description: fields[FieldDescription],
		ReviewCount: fields[FieldReviewCount],
		Rating:      fields[FieldRating],
	}
}

// FieldCount returns how many optional fields were found.
func (r *ExtractedRecord) FieldCount() int {
	n := 0
	for _, f := range []*string{r.Title, r.Price, r.Description, r.ReviewCount, r.Rating} {
		if f != nil {
			n++
		}
	}
	return n
}

// Value dereferences an optional field, returning "" for nil.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
