package scout

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

var (
	// ErrMissingField is returned when a capture result lacks a required field.
	ErrMissingField = errors.New("missing field")

	// ErrInvalidObservation is returned for non-finite or out-of-range values.
	ErrInvalidObservation = errors.New("invalid observation")
)

// CaptureResult is one classified capture as reported by the backend.
// Pointer fields distinguish absent values from zero values.
type CaptureResult struct {
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Prediction *string  `json:"prediction"`
	Confidence *float64 `json:"confidence"`
	ImageURL   string   `json:"image_url,omitempty"`
}

// ResultBatch is the /stop_capture response body. The same shape is accepted
// over MQTT and POST /results.
type ResultBatch struct {
	Results  []CaptureResult `json:"results"`
	Insights string          `json:"insights,omitempty"`
}

// ParseResultsFile reads and parses a result batch JSON file
func ParseResultsFile(path string) (*ResultBatch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParseResultBatch(data)
}

// ParseResultBatch parses result batch JSON data
func ParseResultBatch(data []byte) (*ResultBatch, error) {
	var b ResultBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return &b, nil
}

// Observation validates r and converts it.
func (r CaptureResult) Observation() (Observation, error) {
	switch {
	case r.Latitude == nil:
		return Observation{}, fmt.Errorf("latitude: %w", ErrMissingField)
	case r.Longitude == nil:
		return Observation{}, fmt.Errorf("longitude: %w", ErrMissingField)
	case r.Prediction == nil:
		return Observation{}, fmt.Errorf("prediction: %w", ErrMissingField)
	case r.Confidence == nil:
		return Observation{}, fmt.Errorf("confidence: %w", ErrMissingField)
	}

	o := Observation{
		Latitude:   *r.Latitude,
		Longitude:  *r.Longitude,
		Label:      *r.Prediction,
		Confidence: *r.Confidence,
	}
	if err := o.Validate(); err != nil {
		return Observation{}, err
	}
	return o, nil
}

// Validate checks that o is finite and within range.
func (o Observation) Validate() error {
	if !finite(o.Latitude) || o.Latitude < -90 || o.Latitude > 90 {
		return fmt.Errorf("latitude %v: %w", o.Latitude, ErrInvalidObservation)
	}
	if !finite(o.Longitude) || o.Longitude < -180 || o.Longitude > 180 {
		return fmt.Errorf("longitude %v: %w", o.Longitude, ErrInvalidObservation)
	}
	if !finite(o.Confidence) || o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("confidence %v: %w", o.Confidence, ErrInvalidObservation)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Observations converts every result, failing on the first invalid one.
func (b *ResultBatch) Observations() ([]Observation, error) {
	obs := make([]Observation, 0, len(b.Results))
	for i, r := range b.Results {
		o, err := r.Observation()
		if err != nil {
			return nil, fmt.Errorf("results[%d]: %w", i, err)
		}
		obs = append(obs, o)
	}
	return obs, nil
}

// ValidateObservations checks every observation, failing on the first invalid one.
func ValidateObservations(observations []Observation) error {
	for i, o := range observations {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("observations[%d]: %w", i, err)
		}
	}
	return nil
}

// ResultCard is the printable form of one capture result.
type ResultCard struct {
	Prediction string
	Confidence string // percentage, two decimals
	Location   string // "lat, lon", six decimals
	ImageURL   string
}

// ResultSummary holds the printable form of a batch.
type ResultSummary struct {
	Cards    []ResultCard
	Insights string
}

// NoInsights is shown when the backend returned no insights.
const NoInsights = "No insights available"

// SummarizeResults extracts printable cards from a batch. Absent fields print
// as "n/a" rather than failing; validation happens in Observations.
func SummarizeResults(b *ResultBatch) ResultSummary {
	summary := ResultSummary{Insights: b.Insights}
	if summary.Insights == "" {
		summary.Insights = NoInsights
	}

	for _, r := range b.Results {
		card := ResultCard{
			Prediction: "n/a",
			Confidence: "n/a",
			Location:   "n/a",
			ImageURL:   r.ImageURL,
		}
		if r.Prediction != nil {
			card.Prediction = *r.Prediction
		}
		if r.Confidence != nil {
			card.Confidence = fmt.Sprintf("%.2f%%", *r.Confidence*100)
		}
		if r.Latitude != nil && r.Longitude != nil {
			card.Location = fmt.Sprintf("%.6f, %.6f", *r.Latitude, *r.Longitude)
		}
		summary.Cards = append(summary.Cards, card)
	}
	return summary
}
