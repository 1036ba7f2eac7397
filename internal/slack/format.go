package slack

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // forecast timezones must resolve on minimal images

	"github.com/kjstillabower/slack-weather/internal/models"
	"github.com/kjstillabower/slack-weather/internal/query"
)

// DefaultForecastPageURL is prefixed to "LAT,LON" to link a web forecast.
const DefaultForecastPageURL = "https://merrysky.net/forecast/"

// thumbnailIcons are the icon ids with an image under /images/.
var thumbnailIcons = map[string]struct{}{
	"clear-day":           {},
	"clear-night":         {},
	"rain":                {},
	"snow":                {},
	"sleet":               {},
	"wind":                {},
	"fog":                 {},
	"cloudy":              {},
	"partly-cloudy-day":   {},
	"partly-cloudy-night": {},
}

// FormatInput carries everything needed to build a forecast reply.
type FormatInput struct {
	Address   string
	Latitude  float64
	Longitude float64
	Forecast  models.Forecast
	Units     query.UnitSystem

	// ImageBaseURL is the scheme and host thumbnails are served from, e.g.
	// "https://weather.example.com". No thumbnail is set when empty.
	ImageBaseURL string
	// PageURL overrides DefaultForecastPageURL.
	PageURL string
}

type fieldRule struct {
	title   string
	present func(f *models.Forecast) bool
	value   func(f *models.Forecast) string
}

// forecastFields is evaluated in order; a field appears only if its section is present.
var forecastFields = []fieldRule{
	{
		title:   "Alerts",
		present: func(f *models.Forecast) bool { return len(f.Alerts) > 0 },
		value:   alertsText,
	},
	{
		title:   "Right now",
		present: func(f *models.Forecast) bool { return f.Currently != nil },
		value:   func(f *models.Forecast) string { return currentlyText(f.Currently) },
	},
	{
		title:   "Today",
		present: func(f *models.Forecast) bool { return f.Daily != nil && len(f.Daily.Data) > 0 },
		value:   todayText,
	},
	{
		title:   "Next hour",
		present: func(f *models.Forecast) bool { return f.Minutely != nil },
		value:   func(f *models.Forecast) string { return f.Minutely.Summary },
	},
	{
		title:   "Next 24 hours",
		present: func(f *models.Forecast) bool { return f.Hourly != nil },
		value:   func(f *models.Forecast) string { return f.Hourly.Summary },
	},
	{
		title:   "Next 7 days",
		present: func(f *models.Forecast) bool { return f.Daily != nil },
		value:   func(f *models.Forecast) string { return f.Daily.Summary },
	},
}

// FormatForecast builds the in-channel reply for a resolved address.
func FormatForecast(in FormatInput) Message {
	page := forecastPage(in.PageURL, in.Latitude, in.Longitude)
	f := &in.Forecast

	var apparent *float64
	if f.Currently != nil {
		v := f.Currently.ApparentTemperature
		apparent = &v
	}

	fields := make([]Field, 0, len(forecastFields))
	for _, rule := range forecastFields {
		if rule.present(f) {
			fields = append(fields, Field{Title: rule.title, Value: rule.value(f)})
		}
	}

	att := Attachment{
		Fallback: fmt.Sprintf("Weather forecast for %s: %s", in.Address, page),
		Color:    ColorFor(apparent, in.Units),
		Pretext:  fmt.Sprintf("Weather forecast for <%s|%s>:", page, in.Address),
		Fields:   fields,
		ThumbURL: thumbURL(in.ImageBaseURL, f.Currently),
	}
	return Message{ResponseType: ResponseInChannel, Attachments: []Attachment{att}}
}

func forecastPage(base string, lat, lon float64) string {
	if base == "" {
		base = DefaultForecastPageURL
	}
	return base + strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}

func thumbURL(base string, now *models.Currently) string {
	if base == "" || now == nil {
		return ""
	}
	if _, ok := thumbnailIcons[now.Icon]; !ok {
		return ""
	}
	return strings.TrimRight(base, "/") + "/images/" + now.Icon + ".png"
}

func alertsText(f *models.Forecast) string {
	lines := make([]string, 0, len(f.Alerts))
	for _, a := range f.Alerts {
		lines = append(lines, fmt.Sprintf("<%s|%s>", a.URI, a.Title))
	}
	return strings.Join(lines, "\n")
}

func currentlyText(now *models.Currently) string {
	temp := round(now.Temperature)
	feels := round(now.ApparentTemperature)
	humidity := round(now.Humidity * 100)
	if temp == feels {
		return fmt.Sprintf("%s, %d°, %d%% humidity, dew point %d°", now.Summary, temp, humidity, round(now.DewPoint))
	}
	return fmt.Sprintf("%s, %d° (feels like %d°), %d%% humidity, dew point %d°", now.Summary, temp, feels, humidity, round(now.DewPoint))
}

func todayText(f *models.Forecast) string {
	today := f.Daily.Data[0]
	loc := forecastLocation(f)
	return fmt.Sprintf("%s Low %d° at %s, high %d° at %s.",
		today.Summary,
		round(today.TemperatureMin), clock(today.TemperatureMinTime, loc),
		round(today.TemperatureMax), clock(today.TemperatureMaxTime, loc))
}

// forecastLocation prefers the forecast's IANA zone, then its fixed offset.
func forecastLocation(f *models.Forecast) *time.Location {
	if f.Timezone != "" {
		if loc, err := time.LoadLocation(f.Timezone); err == nil {
			return loc
		}
	}
	if f.Offset != 0 {
		return time.FixedZone("", int(f.Offset*3600))
	}
	return time.UTC
}

func clock(unix int64, loc *time.Location) string {
	return time.Unix(unix, 0).In(loc).Format("03:04 PM")
}

func round(v float64) int {
	return int(math.Round(v))
}
