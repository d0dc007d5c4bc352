package agents

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"brigade/internal/models"
)

// ConsistencyScore is a cross-department coherence estimate in 0..1.
type ConsistencyScore struct {
	Score  float64 `json:"score"`
	Method string  `json:"method"`
}

// ConsistencyChecker estimates how coherent department outputs are with each other.
type ConsistencyChecker interface {
	Check(ctx context.Context, reports []DepartmentReport) (ConsistencyScore, error)
}

// NoopConsistency is the extension point for deployments without a coherence
// check. It always reports 0 with method "unimplemented".
type NoopConsistency struct{}

// Check implements ConsistencyChecker.
func (NoopConsistency) Check(context.Context, []DepartmentReport) (ConsistencyScore, error) {
	return ConsistencyScore{Score: 0, Method: "unimplemented"}, nil
}

const embeddingDims = 256

// LexicalConsistency scores the mean pairwise cosine similarity of hashed
// bag-of-words vectors over completed department outputs. Fewer than two
// outputs are trivially consistent.
type LexicalConsistency struct{}

// Check implements ConsistencyChecker.
func (LexicalConsistency) Check(ctx context.Context, reports []DepartmentReport) (ConsistencyScore, error) {
	var vecs [][]float32
	for _, r := range reports {
		if r.Status != models.DepartmentComplete || strings.TrimSpace(r.Output) == "" {
			continue
		}
		vecs = append(vecs, embed(r.Output))
	}
	if len(vecs) < 2 {
		return ConsistencyScore{Score: 1, Method: "lexical"}, nil
	}

	var sum float64
	var pairs int
	for i := 0; i < len(vecs); i++ {
		for j := i + 1; j < len(vecs); j++ {
			if err := ctx.Err(); err != nil {
				return ConsistencyScore{}, err
			}
			sum += math.Max(0, float64(cosineSimilarity(vecs[i], vecs[j])))
			pairs++
		}
	}
	return ConsistencyScore{Score: sum / float64(pairs), Method: "lexical"}, nil
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"are": true, "was": true, "from": true, "have": true, "has": true, "not": true,
	"but": true, "you": true, "your": true, "its": true, "into": true, "will": true,
}

// embed hashes each content word into a fixed-size signed vector.
func embed(text string) []float32 {
	v := make([]float32, embeddingDims)
	for _, w := range tokenize(strings.ToLower(text)) {
		if len(w) < 3 || stopWords[w] {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		v[sum%embeddingDims] += sign
	}
	normalize(v)
	return v
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / float32(math.Sqrt(float64(normA)*float64(normB)))
}

func normalize(v []float32) {
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	norm = float32(math.Sqrt(float64(norm)))

	if norm != 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
