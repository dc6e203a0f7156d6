package generate

import "github.com/teranos/samplegen/errors"

// Batch is one bounded model call
type Batch struct {
	Index      int `json:"index"`       // 0-based position in the plan
	Records    int `json:"records"`     // Records requested from the model
	StartingID int `json:"starting_id"` // First sequence id of the batch, 1-based
}

// BatchPlan is the ordered list of batches for one request
type BatchPlan []Batch

// Total returns the number of records the plan requests
func (p BatchPlan) Total() int {
	total := 0
	for _, b := range p {
		total += b.Records
	}
	return total
}

// Plan splits total records into batches of at most batchSize.
// Starting ids are contiguous from 1.
func Plan(total, batchSize int) (BatchPlan, error) {
	if total <= 0 {
		return nil, errors.NewInvalidRequestError("record count must be positive, got %d", total)
	}
	if batchSize <= 0 {
		return nil, errors.NewInvalidRequestError("batch size must be positive, got %d", batchSize)
	}

	count := (total + batchSize - 1) / batchSize
	plan := make(BatchPlan, count)
	for b := 0; b < count; b++ {
		plan[b] = Batch{
			Index:      b,
			Records:    min(batchSize, total-b*batchSize),
			StartingID: b*batchSize + 1,
		}
	}
	return plan, nil
}
