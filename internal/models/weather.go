package models

// GeocodeStatusOK is the geocoder status for a resolved address.
const GeocodeStatusOK = "OK"

// GeocodeResponse is the geocoder's answer for one free-text address.
// A non-OK Status is an expected outcome, not an error.
type GeocodeResponse struct {
	Status  string          `json:"status"`
	Results []GeocodeResult `json:"results"`
}

// Resolved reports whether the response carries a usable first result.
func (r GeocodeResponse) Resolved() bool {
	return r.Status == GeocodeStatusOK && len(r.Results) > 0
}

type GeocodeResult struct {
	FormattedAddress string  `json:"formattedAddress"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
}

// Forecast is a Dark Sky compatible forecast. Every section is optional.
type Forecast struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Timezone  string     `json:"timezone"`
	Offset    float64    `json:"offset"`
	Currently *Currently `json:"currently,omitempty"`
	Minutely  *Summary   `json:"minutely,omitempty"`
	Hourly    *Summary   `json:"hourly,omitempty"`
	Daily     *Daily     `json:"daily,omitempty"`
	Alerts    []Alert    `json:"alerts,omitempty"`
}

type Currently struct {
	Summary             string  `json:"summary"`
	Icon                string  `json:"icon"`
	Temperature         float64 `json:"temperature"`
	ApparentTemperature float64 `json:"apparentTemperature"`
	Humidity            float64 `json:"humidity"` // 0..1
	DewPoint            float64 `json:"dewPoint"`
}

// Summary is a forecast block used only for its summary text.
type Summary struct {
	Summary string `json:"summary"`
	Icon    string `json:"icon"`
}

type Daily struct {
	Summary string       `json:"summary"`
	Icon    string       `json:"icon"`
	Data    []DailyPoint `json:"data"`
}

// DailyPoint holds one day's extremes; times are unix seconds.
type DailyPoint struct {
	Time               int64   `json:"time"`
	Summary            string  `json:"summary"`
	TemperatureMin     float64 `json:"temperatureMin"`
	TemperatureMinTime int64   `json:"temperatureMinTime"`
	TemperatureMax     float64 `json:"temperatureMax"`
	TemperatureMaxTime int64   `json:"temperatureMaxTime"`
}

type Alert struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}
