package model

// RawRecord is one input row before encoding.
type RawRecord struct {
	GrainID string           `json:"grain_id"`
	Values  map[string]Value `json:"values"`
}

// Record is a scored-ready row: raw values plus the encoded feature vector.
// Records are never mutated after a Batch is built.
type Record struct {
	GrainID string
	Raw     map[string]Value
	Encoded []float64
}

// Observed returns the raw value of a variable.
func (r Record) Observed(variable string) Value {
	return r.Raw[variable]
}

// Frame is the encoded, column-named matrix consumed by the prediction engine.
type Frame struct {
	Columns []string
	Rows    [][]float64
}

// Batch is one prepared deployment batch.
type Batch struct {
	ID          string
	GrainColumn string
	Columns     []string
	Records     []Record
}

// Frame returns the encoded view of the batch. Rows share memory with the
// records, so callers must treat them as read-only.
func (b *Batch) Frame() Frame {
	rows := make([][]float64, len(b.Records))
	for i := range b.Records {
		rows[i] = b.Records[i].Encoded
	}
	return Frame{Columns: b.Columns, Rows: rows}
}

// GrainIDs returns the grain identifiers in batch order.
func (b *Batch) GrainIDs() []string {
	ids := make([]string, len(b.Records))
	for i := range b.Records {
		ids[i] = b.Records[i].GrainID
	}
	return ids
}

// Index returns the position of each grain id within the batch.
func (b *Batch) Index() map[string]int {
	idx := make(map[string]int, len(b.Records))
	for i := range b.Records {
		idx[b.Records[i].GrainID] = i
	}
	return idx
}
