package weather

// Source records where a lookup result came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceProvider Source = "provider"
)

// Result is what Lookup hands back. A nil Conditions means the provider had
// nothing to say about the subject.
type Result struct {
	Source     Source      `json:"source"`
	Conditions *Conditions `json:"conditions,omitempty"`
}

// Empty reports whether the result carries no payload.
func (r Result) Empty() bool { return r.Conditions == nil }

// Conditions follows the weatherstack current-conditions schema.
type Conditions struct {
	Location *Location `json:"location,omitempty"`
	Current  Current   `json:"current"`
	// Error is set when the provider reports a failure inside a 200 response.
	Error *Fault `json:"error,omitempty"`
}

type Location struct {
	Name      string `json:"name"`
	Country   string `json:"country,omitempty"`
	Region    string `json:"region,omitempty"`
	LocalTime string `json:"localtime,omitempty"`
}

type Current struct {
	ObservationTime     string   `json:"observation_time,omitempty"`
	Temperature         int      `json:"temperature"`
	FeelsLike           int      `json:"feelslike"`
	WeatherDescriptions []string `json:"weather_descriptions,omitempty"`
	Humidity            int      `json:"humidity,omitempty"`
	WindSpeed           int      `json:"wind_speed,omitempty"`
}

type Fault struct {
	Code int    `json:"code"`
	Type string `json:"type"`
	Info string `json:"info,omitempty"`
}
