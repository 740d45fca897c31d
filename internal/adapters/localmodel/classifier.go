// Package localmodel is a triage classifier trained and run in process
package localmodel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/core"
)

const (
	// SnapshotFile is the model file written inside the model directory
	SnapshotFile = "model.json"

	snapshotVersion = 1

	DefaultMaxTokens = 512
	DefaultVocabSize = 20000
)

// DefaultFitOptions are used for any zero field passed to Fit
var DefaultFitOptions = core.FitOptions{
	Epochs:       3,
	BatchSize:    8,
	LearningRate: 0.5,
}

// snapshot is the persisted model: vocabulary plus per-class weights
type snapshot struct {
	Version    int            `json:"version"`
	Labels     []string       `json:"labels"`
	Vocabulary map[string]int `json:"vocabulary"`
	Weights    [][]float64    `json:"weights"`
	Bias       []float64      `json:"bias"`
	MaxTokens  int            `json:"max_tokens"`
	Examples   int            `json:"examples"`
	TrainedAt  time.Time      `json:"trained_at"`
}

// Classifier is a bag-of-words softmax classifier over the triage labels.
// Classify may run concurrently; Fit excludes all other calls.
type Classifier struct {
	mu        sync.RWMutex
	dir       string
	maxTokens int
	vocabSize int
	seed      uint64
	model     *snapshot
	logger    *zap.Logger
}

// NewClassifier creates a classifier backed by dir, loading a saved model if one exists
func NewClassifier(dir string, maxTokens, vocabSize int, logger *zap.Logger) (*Classifier, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if vocabSize <= 0 {
		vocabSize = DefaultVocabSize
	}

	c := &Classifier{
		dir:       dir,
		maxTokens: maxTokens,
		vocabSize: vocabSize,
		seed:      42,
		logger:    logger,
	}

	model, err := loadSnapshot(filepath.Join(dir, SnapshotFile))
	if err != nil {
		return nil, err
	}
	if model != nil {
		c.model = model
		c.maxTokens = model.MaxTokens
		logger.Info("Loaded local model",
			zap.String("dir", dir),
			zap.Int("vocabulary", len(model.Vocabulary)),
			zap.Int("examples", model.Examples))
	}

	return c, nil
}

// Identity describes the backend
func (c *Classifier) Identity() core.ProviderIdentity {
	return core.ProviderIdentity{Kind: "local", Model: c.dir}
}

// Loaded reports whether a trained model is available
func (c *Classifier) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model != nil
}

// Classify runs the model over content. The task prompt is not used.
func (c *Classifier) Classify(ctx context.Context, content, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.model == nil {
		return "", fmt.Errorf("%w: no trained model in %s", core.ErrUnavailable, c.dir)
	}

	features := c.features(c.model.Vocabulary, content)
	probs := forward(c.model, features)

	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}

	return c.model.Labels[best], nil
}

// Fit trains a new model on corpus with mini-batch gradient descent and saves it
func (c *Classifier) Fit(ctx context.Context, corpus []core.LabeledExample, opts core.FitOptions) error {
	if opts.Epochs <= 0 {
		opts.Epochs = DefaultFitOptions.Epochs
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultFitOptions.BatchSize
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultFitOptions.LearningRate
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	labels := make([]string, len(core.Labels))
	labelIDs := make(map[core.Label]int, len(core.Labels))
	for i, l := range core.Labels {
		labels[i] = string(l)
		labelIDs[l] = i
	}

	texts := make([][]string, 0, len(corpus))
	targets := make([]int, 0, len(corpus))
	for _, example := range corpus {
		label, ok := core.ParseLabel(example.Label)
		if !ok {
			c.logger.Warn("Skipping example with unknown label",
				zap.String("message_id", example.MessageID),
				zap.String("label", example.Label))
			continue
		}
		content := core.FormatContent(
			core.Address{Name: example.SenderName, Email: example.SenderEmail},
			example.Subject, example.Body)
		texts = append(texts, Tokenize(Preprocess(content), c.maxTokens))
		targets = append(targets, labelIDs[label])
	}
	if len(texts) == 0 {
		return errors.New("no labeled examples to train on")
	}

	model := &snapshot{
		Version:    snapshotVersion,
		Labels:     labels,
		Vocabulary: buildVocabulary(texts, c.vocabSize),
		Weights:    make([][]float64, len(labels)),
		Bias:       make([]float64, len(labels)),
		MaxTokens:  c.maxTokens,
		Examples:   len(texts),
	}
	for k := range model.Weights {
		model.Weights[k] = make([]float64, len(model.Vocabulary))
	}

	inputs := make([]map[int]float64, len(texts))
	for i, tokens := range texts {
		inputs[i] = vectorize(model.Vocabulary, tokens)
	}

	rng := rand.New(rand.NewPCG(c.seed, c.seed))
	order := make([]int, len(inputs))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var loss float64
		for start := 0; start < len(order); start += opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+opts.BatchSize, len(order))
			loss += step(model, inputs, targets, order[start:end], opts.LearningRate)
		}

		c.logger.Info("Training epoch finished",
			zap.Int("epoch", epoch),
			zap.Int("epochs", opts.Epochs),
			zap.Float64("loss", loss/float64(len(order))))
	}

	model.TrainedAt = time.Now().UTC()
	if err := saveSnapshot(c.dir, model); err != nil {
		return err
	}

	c.model = model
	c.logger.Info("Local model saved",
		zap.String("path", filepath.Join(c.dir, SnapshotFile)),
		zap.Int("vocabulary", len(model.Vocabulary)),
		zap.Int("examples", model.Examples))

	return nil
}

func (c *Classifier) features(vocab map[string]int, content string) map[int]float64 {
	return vectorize(vocab, Tokenize(Preprocess(content), c.maxTokens))
}

// step applies one mini-batch update and returns the summed cross-entropy loss
func step(model *snapshot, inputs []map[int]float64, targets []int, batch []int, lr float64) float64 {
	classes := len(model.Labels)
	gradW := make([]map[int]float64, classes)
	gradB := make([]float64, classes)
	for k := range gradW {
		gradW[k] = make(map[int]float64)
	}

	var loss float64
	for _, i := range batch {
		probs := forward(model, inputs[i])
		loss -= math.Log(math.Max(probs[targets[i]], 1e-12))

		for k := 0; k < classes; k++ {
			g := probs[k]
			if k == targets[i] {
				g -= 1
			}
			gradB[k] += g
			for f, v := range inputs[i] {
				gradW[k][f] += g * v
			}
		}
	}

	scale := lr / float64(len(batch))
	for k := 0; k < classes; k++ {
		model.Bias[k] -= scale * gradB[k]
		for f, g := range gradW[k] {
			model.Weights[k][f] -= scale * g
		}
	}

	return loss
}

// forward returns class probabilities for a feature vector
func forward(model *snapshot, x map[int]float64) []float64 {
	logits := make([]float64, len(model.Labels))
	for k := range logits {
		z := model.Bias[k]
		for f, v := range x {
			z += model.Weights[k][f] * v
		}
		logits[k] = z
	}

	maxLogit := logits[0]
	for _, z := range logits[1:] {
		maxLogit = math.Max(maxLogit, z)
	}

	var sum float64
	for k, z := range logits {
		logits[k] = math.Exp(z - maxLogit)
		sum += logits[k]
	}
	for k := range logits {
		logits[k] /= sum
	}
	return logits
}

// vectorize maps tokens to L2-normalized presence features
func vectorize(vocab map[string]int, tokens []string) map[int]float64 {
	x := make(map[int]float64)
	for _, t := range tokens {
		if id, ok := vocab[t]; ok {
			x[id] = 1
		}
	}
	if len(x) == 0 {
		return x
	}
	norm := 1 / math.Sqrt(float64(len(x)))
	for id := range x {
		x[id] = norm
	}
	return x
}

// buildVocabulary keeps the size most frequent tokens by document frequency
func buildVocabulary(texts [][]string, size int) map[string]int {
	df := make(map[string]int)
	for _, tokens := range texts {
		seen := make(map[string]bool, len(tokens))
		for _, t := range tokens {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}

	words := make([]string, 0, len(df))
	for w := range df {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if df[words[i]] != df[words[j]] {
			return df[words[i]] > df[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > size {
		words = words[:size]
	}

	vocab := make(map[string]int, len(words))
	for i, w := range words {
		vocab[w] = i
	}
	return vocab
}

func loadSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model snapshot: %w", err)
	}

	var model snapshot
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to decode model snapshot %s: %w", path, err)
	}
	if model.Version != snapshotVersion || len(model.Labels) == 0 ||
		len(model.Weights) != len(model.Labels) || len(model.Bias) != len(model.Labels) {
		return nil, fmt.Errorf("model snapshot %s is incompatible", path)
	}
	for _, w := range model.Weights {
		if len(w) != len(model.Vocabulary) {
			return nil, fmt.Errorf("model snapshot %s is incompatible", path)
		}
	}

	return &model, nil
}

func saveSnapshot(dir string, model *snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "model-*.json")
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(model); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write model snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write model snapshot: %w", err)
	}

	return os.Rename(tmp.Name(), filepath.Join(dir, SnapshotFile))
}
