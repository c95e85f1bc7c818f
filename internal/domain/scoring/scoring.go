// Package scoring defines the correctness-model capability: training a
// per-problem classifier from graded submissions and scoring new code.
//
// The rest of the system treats models as opaque: train, score, serialize.
// The implementation here is a multinomial naive-Bayes classifier over code
// token n-grams, with a constant-prediction fallback for single-class
// training data.
package scoring

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Default training configuration constants.
const (
	defaultNgramMin = 1
	defaultNgramMax = 3
	defaultAlpha    = 1.0 // Laplace smoothing
)

// tokenPattern splits code into words, single punctuation characters, and
// four-space indentation runs.
var tokenPattern = regexp.MustCompile(`\w+|[^\s]| {4}`)

// Example is one graded submission used for training.
type Example struct {
	Code    string
	Correct bool
}

// Model scores code, returning the probability that it is a correct
// solution to the model's problem.
type Model interface {
	Score(code string) float64
}

// Trainer builds a Model from graded submissions.
type Trainer struct {
	ngramMin int
	ngramMax int
	alpha    float64
}

// Option applies a configuration option to the Trainer.
type Option func(*Trainer)

// WithNgramRange sets the inclusive n-gram range used for features.
func WithNgramRange(minN, maxN int) Option {
	return func(t *Trainer) {
		if minN > 0 && maxN >= minN {
			t.ngramMin = minN
			t.ngramMax = maxN
		}
	}
}

// WithAlpha sets the additive smoothing constant.
func WithAlpha(alpha float64) Option {
	return func(t *Trainer) {
		if alpha > 0 {
			t.alpha = alpha
		}
	}
}

// NewTrainer creates a Trainer with configuration options.
func NewTrainer(opts ...Option) *Trainer {
	t := &Trainer{
		ngramMin: defaultNgramMin,
		ngramMax: defaultNgramMax,
		alpha:    defaultAlpha,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train fits a model to the given examples. Training data containing only
// one class yields a constant model rather than an error, so degenerate
// early-semester datasets still produce a usable artifact.
func (t *Trainer) Train(ctx context.Context, examples []Example) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("train cancelled: %w", err)
	}
	if len(examples) == 0 {
		return nil, ErrNoExamples
	}

	correct := 0
	for _, ex := range examples {
		if ex.Correct {
			correct++
		}
	}
	if correct == len(examples) {
		return &ConstantModel{Probability: 1}, nil
	}
	if correct == 0 {
		return &ConstantModel{Probability: 0}, nil
	}

	m := &NaiveBayesModel{
		Alpha:         t.alpha,
		NgramMin:      t.ngramMin,
		NgramMax:      t.ngramMax,
		FeatureCounts: make(map[string][2]float64),
	}
	vocab := make(map[string]struct{})
	for _, ex := range examples {
		class := 0
		if ex.Correct {
			class = 1
		}
		m.DocCounts[class]++
		for _, feat := range ngrams(tokenize(ex.Code), t.ngramMin, t.ngramMax) {
			counts := m.FeatureCounts[feat]
			counts[class]++
			m.FeatureCounts[feat] = counts
			m.TokenTotals[class]++
			vocab[feat] = struct{}{}
		}
	}
	m.VocabSize = len(vocab)
	return m, nil
}

// ConstantModel always predicts the same probability. It stands in for a
// real classifier when the training data contains a single class.
type ConstantModel struct {
	Probability float64
}

// Score returns the constant probability regardless of code.
func (m *ConstantModel) Score(_ string) float64 {
	return m.Probability
}

// NaiveBayesModel is a multinomial naive-Bayes classifier over token
// n-grams. Class index 0 is incorrect, 1 is correct. All fields are
// exported for gob serialization.
type NaiveBayesModel struct {
	Alpha         float64
	NgramMin      int
	NgramMax      int
	FeatureCounts map[string][2]float64
	TokenTotals   [2]float64
	DocCounts     [2]float64
	VocabSize     int
}

// Score returns the posterior probability that code is correct.
func (m *NaiveBayesModel) Score(code string) float64 {
	feats := ngrams(tokenize(code), m.NgramMin, m.NgramMax)
	total := m.DocCounts[0] + m.DocCounts[1]
	logs := [2]float64{}
	for class := 0; class < 2; class++ {
		logs[class] = math.Log(m.DocCounts[class] / total)
		denom := m.TokenTotals[class] + m.Alpha*float64(m.VocabSize)
		for _, feat := range feats {
			counts := m.FeatureCounts[feat]
			logs[class] += math.Log((counts[class] + m.Alpha) / denom)
		}
	}
	// Stable log-sum-exp over the two class scores.
	maxLog := math.Max(logs[0], logs[1])
	num := math.Exp(logs[1] - maxLog)
	denom := num + math.Exp(logs[0]-maxLog)
	return num / denom
}

// tokenize splits code into classifier tokens.
func tokenize(code string) []string {
	return tokenPattern.FindAllString(code, -1)
}

// ngrams expands a token sequence into n-grams of sizes [minN, maxN].
func ngrams(tokens []string, minN, maxN int) []string {
	var out []string
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

func init() {
	gob.Register(&ConstantModel{})
	gob.Register(&NaiveBayesModel{})
}

// Marshal serializes a model for blob storage.
func Marshal(m Model) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// Unmarshal deserializes a model stored by Marshal.
func Unmarshal(blob []byte) (Model, error) {
	var m Model
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return m, nil
}
