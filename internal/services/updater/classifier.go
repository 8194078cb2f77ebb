package updater

import (
	"strconv"
	"strings"

	"fracttalsync/internal/config"
	"fracttalsync/internal/report"
)

// Classifier decides which cumulative counter a row updates and extracts
// the numeric delta to add.
//
// Category matching is case-insensitive against two vocabularies: vehicles
// (distance) and machinery (runtime). A category in neither vocabulary
// defaults to the runtime counter — machinery is the open-ended segment of
// the fleet — unless strict mode is on, in which case it is a per-row
// classification failure.
type Classifier struct {
	distance map[string]bool
	runtime  map[string]bool
	strict   bool
}

// NewClassifier builds a classifier from configuration. Empty vocabularies
// fall back to the RSV report's category labels.
func NewClassifier(cfg config.ClassifierConfig) *Classifier {
	distance := cfg.DistanceCategories
	if len(distance) == 0 {
		// "Camión" appears in some report revisions in the singular.
		distance = []string{"Flota Liviana", "Camiones", "Camión"}
	}
	runtime := cfg.RuntimeCategories
	if len(runtime) == 0 {
		runtime = []string{"Maquinarias"}
	}

	return &Classifier{
		distance: vocabulary(distance),
		runtime:  vocabulary(runtime),
		strict:   cfg.Strict,
	}
}

func vocabulary(labels []string) map[string]bool {
	m := make(map[string]bool, len(labels))
	for _, label := range labels {
		m[strings.ToLower(strings.TrimSpace(label))] = true
	}
	return m
}

// Classify returns the counter kind for a row and the delta to submit.
func (c *Classifier) Classify(row report.Row) (CounterKind, float64, error) {
	category := strings.ToLower(strings.TrimSpace(row.Category))

	switch {
	case c.distance[category]:
		delta, err := parseDistance(row.Distance)
		return KindDistance, delta, err
	case c.runtime[category]:
		delta, err := parseRunningTime(row.Runtime)
		return KindRuntime, delta, err
	default:
		if c.strict {
			return KindRuntime, 0, &ClassificationError{Category: row.Category}
		}
		delta, err := parseRunningTime(row.Runtime)
		return KindRuntime, delta, err
	}
}

// parseDistance reads a kilometre figure. The report uses a comma decimal
// separator.
func parseDistance(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &ValueError{Field: "distance", Raw: raw, Reason: "missing"}
	}

	value, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil {
		return 0, &ValueError{Field: "distance", Raw: raw, Reason: "not a number"}
	}
	if value < 0 {
		return 0, &ValueError{Field: "distance", Raw: raw, Reason: "negative"}
	}
	return value, nil
}

// parseRunningTime reads machine running time as decimal hours. The report
// writes it as "HH:MM"; plain decimals are accepted too.
func parseRunningTime(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &ValueError{Field: "running time", Raw: raw, Reason: "missing"}
	}

	if strings.Contains(raw, ":") {
		parts := strings.SplitN(raw, ":", 2)
		hours, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return 0, &ValueError{Field: "running time", Raw: raw, Reason: "not a HH:MM time"}
		}
		minutes, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || minutes < 0 || minutes > 59 {
			return 0, &ValueError{Field: "running time", Raw: raw, Reason: "not a HH:MM time"}
		}
		if hours < 0 {
			return 0, &ValueError{Field: "running time", Raw: raw, Reason: "negative"}
		}
		return float64(hours) + float64(minutes)/60, nil
	}

	value, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil {
		return 0, &ValueError{Field: "running time", Raw: raw, Reason: "not a number"}
	}
	if value < 0 {
		return 0, &ValueError{Field: "running time", Raw: raw, Reason: "negative"}
	}
	return value, nil
}
