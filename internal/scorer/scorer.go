// Package scorer assigns anomaly scores to metrics snapshots.
package scorer

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"hostwatch/internal/errpolicy"
	"hostwatch/internal/logger"
	"hostwatch/pkg/models"
)

// featureCount is the length of the model input vector: failed logins,
// process count, CPU usage, network connections.
const featureCount = 4

// Scorer produces a prediction for one snapshot.
type Scorer interface {
	Predict(snap *models.MetricsSnapshot) (models.Prediction, error)
}

// modelFile is the on-disk shape of a trained logistic model.
type modelFile struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// WeightedScorer is a logistic model over the snapshot's metric vector.
type WeightedScorer struct {
	weights []float64
	bias    float64
}

// Load reads a model file and returns a ready scorer. A missing or malformed
// model file is an error; callers treat it as a startup failure since the
// pipeline cannot score without a model.
func Load(path string) (*WeightedScorer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}
	var m modelFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid model file %s: %w", path, err)
	}
	if len(m.Weights) != featureCount {
		return nil, fmt.Errorf("%w: model %s has %d weights, want %d",
			errpolicy.ErrInvalidArgument, path, len(m.Weights), featureCount)
	}
	logger.Infof("scorer: loaded model from %s", path)
	return &WeightedScorer{weights: m.Weights, bias: m.Bias}, nil
}

// Predict scores a snapshot. The score is a sigmoid over the weighted metric
// vector, so it always lands in [0,1]; the label is anomalous at 0.5 and
// above, and confidence measures the distance from that decision boundary.
func (s *WeightedScorer) Predict(snap *models.MetricsSnapshot) (models.Prediction, error) {
	if snap == nil {
		return models.Prediction{}, fmt.Errorf("%w: nil snapshot", errpolicy.ErrInvalidArgument)
	}

	input := snap.ModelInput()
	sum := s.bias
	for i, v := range input {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.Prediction{}, fmt.Errorf("%w: non-finite feature at index %d", errpolicy.ErrInvalidArgument, i)
		}
		sum += s.weights[i] * v
	}

	score := sigmoid(sum)
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	label := models.LabelNormal
	if score >= 0.5 {
		label = models.LabelAnomaly
	}

	return models.Prediction{
		AnomalyScore: score,
		Label:        label,
		Confidence:   math.Abs(score-0.5) * 2,
	}, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
