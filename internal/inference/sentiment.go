package inference

import "fmt"

// Sentiment labels of a two-logit classifier.
const (
	Negative = "NEGATIVE"
	Positive = "POSITIVE"
)

// Classify maps [negative, positive] logits to a label. Ties are negative.
func Classify(logits []float32) (string, error) {
	if len(logits) != 2 {
		return "", fmt.Errorf("expected 2 logits, got %d", len(logits))
	}
	if logits[1] > logits[0] {
		return Positive, nil
	}
	return Negative, nil
}

// TokenInputs builds the input_ids and attention_mask inputs of a
// single-sequence transformer from token ids.
func TokenInputs(ids []int64) []Input {
	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	shape := []int64{1, int64(len(ids))}
	return []Input{
		{Name: "input_ids", Shape: shape, Int64: ids},
		{Name: "attention_mask", Shape: shape, Int64: mask},
	}
}
