package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// SessionFeatures are the per-session signals a classifier may use.
type SessionFeatures struct {
	DurationSeconds float64 `json:"duration_seconds"`
	PageViews       int     `json:"page_views"`
	UniquePages     int     `json:"unique_pages"`
	Events          int     `json:"events"`
	Interactions    int     `json:"interactions"`
	Conversions     int     `json:"conversions"`
	IsReturning     bool    `json:"is_returning"`
	DeviceType      string  `json:"device_type"`
}

type Classification struct {
	Class        string  `json:"class"`
	Score        float64 `json:"score"`
	ModelVersion string  `json:"model_version"`
}

// SessionClassifier labels a closed session. Implementations must be safe for
// concurrent use.
type SessionClassifier interface {
	Classify(ctx context.Context, features SessionFeatures) (*Classification, error)
}

const (
	ClassBounce    = "bounce"
	ClassBrowser   = "browser"
	ClassEngaged   = "engaged"
	ClassConverter = "converter"
)

type SessionModel struct {
	Weights   map[string]float64 `json:"weights"`
	Intercept float64            `json:"intercept"`
	Version   string             `json:"version"`
}

// HeuristicClassifier is a fixed logistic model over session features.
type HeuristicClassifier struct {
	model     *SessionModel
	isEnabled bool
	threshold float64
}

func NewHeuristicClassifier(version string, enabled bool, threshold float64) *HeuristicClassifier {
	if version == "" {
		version = "heuristic-1"
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.6
	}
	return &HeuristicClassifier{
		model: &SessionModel{
			Weights: map[string]float64{
				"log_duration":  0.55,
				"page_views":    0.35,
				"unique_ratio":  0.40,
				"interactions":  0.45,
				"is_returning":  0.30,
				"mobile_device": -0.15,
			},
			Intercept: -3.0,
			Version:   version,
		},
		isEnabled: enabled,
		threshold: threshold,
	}
}

// LoadSessionModel reads a JSON file holding weights, intercept and version.
func LoadSessionModel(path string) (*SessionModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session model: %w", err)
	}
	var model SessionModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to parse session model: %w", err)
	}
	if len(model.Weights) == 0 {
		return nil, errors.New("session model has no weights")
	}
	return &model, nil
}

// UseModel swaps in trained weights. An empty version keeps the current one.
// Not safe to call while Classify is running.
func (h *HeuristicClassifier) UseModel(model *SessionModel) {
	if model.Version == "" {
		model.Version = h.model.Version
	}
	h.model = model
}

func (h *HeuristicClassifier) Enabled() bool {
	return h != nil && h.isEnabled
}

func (h *HeuristicClassifier) Classify(ctx context.Context, f SessionFeatures) (*Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if f.Conversions > 0 {
		return &Classification{Class: ClassConverter, Score: 1, ModelVersion: h.model.Version}, nil
	}
	if f.PageViews <= 1 && f.Interactions == 0 && f.DurationSeconds < 10 {
		return &Classification{Class: ClassBounce, Score: 0, ModelVersion: h.model.Version}, nil
	}

	score := h.score(h.extractFeatures(f))
	class := ClassBrowser
	if score >= h.threshold {
		class = ClassEngaged
	}

	return &Classification{
		Class:        class,
		Score:        math.Round(score*1000) / 1000,
		ModelVersion: h.model.Version,
	}, nil
}

func (h *HeuristicClassifier) extractFeatures(f SessionFeatures) map[string]float64 {
	features := map[string]float64{
		"log_duration": math.Log1p(math.Max(f.DurationSeconds, 0)),
		"page_views":   math.Min(float64(f.PageViews), 20),
		"interactions": math.Min(float64(f.Interactions), 20),
	}
	if f.PageViews > 0 {
		features["unique_ratio"] = float64(f.UniquePages) / float64(f.PageViews)
	}
	if f.IsReturning {
		features["is_returning"] = 1
	}
	if f.DeviceType == "mobile" {
		features["mobile_device"] = 1
	}
	return features
}

// score applies the logistic model.
func (h *HeuristicClassifier) score(features map[string]float64) float64 {
	logit := h.model.Intercept
	for feature, value := range features {
		if weight, exists := h.model.Weights[feature]; exists {
			logit += weight * value
		}
	}
	return 1.0 / (1.0 + math.Exp(-logit))
}
