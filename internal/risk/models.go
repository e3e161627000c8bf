package risk

import "time"

// Category identifies the environmental factor an impact or alert concerns.
type Category string

const (
	CategoryTemperature Category = "temperature"
	CategoryHumidity    Category = "humidity"
	CategoryWind        Category = "wind"
	CategoryUV          Category = "uv"
	CategoryAirQuality  Category = "air_quality"
)

// Level is a risk tier.
type Level string

const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
)

var levelRank = map[Level]int{
	LevelLow:      0,
	LevelModerate: 1,
	LevelHigh:     2,
}

// MoreSevere returns the higher of two levels.
func MoreSevere(a, b Level) Level {
	if levelRank[a] >= levelRank[b] {
		return a
	}
	return b
}

// AtLeast reports whether l is at least as severe as other.
func (l Level) AtLeast(other Level) bool {
	return levelRank[l] >= levelRank[other]
}

// Impact is the assessed risk for one category.
type Impact struct {
	Category Category
	Risk     Level
	Value    float64
}

// Alert is a human-readable health alert derived from a non-low impact.
type Alert struct {
	Category Category
	Severity Level
	Message  string
	IssuedAt time.Time
}

// Assessment is the full result of evaluating one reading: one impact per
// category in stable order, plus an alert for every impact above low.
type Assessment struct {
	Impacts []Impact
	Alerts  []Alert
}

// HighestSeverity returns the most severe alert level in the assessment, or
// LevelLow when there are no alerts.
func (a Assessment) HighestSeverity() Level {
	highest := LevelLow
	for _, alert := range a.Alerts {
		highest = MoreSevere(highest, alert.Severity)
	}
	return highest
}
