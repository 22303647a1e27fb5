package index

// Posting is one (global document id, term frequency) pair.
type Posting struct {
	DocID     int
	Frequency uint32
}

// PostingList is ordered by ascending DocID with no duplicates.
type PostingList []Posting

// Term is a (field, value) pair matched exactly against the dictionary.
type Term struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (t Term) String() string {
	return t.Field + ":" + t.Value
}
