package slack

import (
	"math"

	"github.com/kjstillabower/slack-weather/internal/query"
)

// NeutralColor is used when there is no current apparent temperature.
const NeutralColor = "#CCCCCC"

// temperatureColors is indexed by whole degrees Fahrenheit, 0°F through 99°F.
var temperatureColors = [...]string{
	"#011892", "#011A94", "#011D96", "#012099", "#01259D", "#0129A1", "#012DA5", "#0132A9", "#0137AE", "#003CB2",
	"#0041B7", "#0046BB", "#004ABF", "#004FC3", "#0052C6", "#0055C9", "#0058CB", "#005ACD", "#015DCF", "#0061D2",
	"#0065D5", "#0068D9", "#006DDD", "#0072E1", "#0077E5", "#007BE9", "#0081ED", "#0085F1", "#0089F4", "#008DF7",
	"#0090FB", "#0094FD", "#0096FE", "#0096FC", "#0096F9", "#0096F4", "#0095F0", "#0095EA", "#0094E5", "#0095DF",
	"#0094D9", "#0094D3", "#0094CD", "#0093C6", "#0093C0", "#0093BA", "#0093B4", "#0093AE", "#0092A8", "#0092A3",
	"#00919E", "#00929A", "#009296", "#019193", "#01918C", "#009182", "#009175", "#009065", "#008F55", "#008F45",
	"#008F34", "#008F24", "#008F16", "#008E0B", "#008E02", "#058E00", "#0E8E00", "#188F00", "#248E01", "#318E00",
	"#3E8F00", "#4C8F01", "#598F00", "#678F00", "#739000", "#7E9000", "#879000", "#8F9000", "#979000", "#A39000",
	"#B39100", "#C49100", "#D59200", "#E69300", "#F49300", "#FD9200", "#FB8E00", "#F38501", "#EB7A00", "#E26F00",
	"#D96400", "#D15B00", "#CC5400", "#C74E00", "#BF4400", "#B63900", "#AC2D00", "#A22100", "#991800", "#931200",
}

// ColorFor maps an apparent temperature to an attachment color. Metric
// temperatures are converted to Fahrenheit first; out-of-range values clamp to
// the ends of the gradient.
func ColorFor(apparent *float64, units query.UnitSystem) string {
	if apparent == nil {
		return NeutralColor
	}
	f := *apparent
	if units == query.Metric {
		f = f*9/5 + 32
	}
	idx := math.Round(f)
	switch {
	case math.IsNaN(idx) || idx < 0:
		idx = 0
	case idx > float64(len(temperatureColors)-1):
		idx = float64(len(temperatureColors) - 1)
	}
	return temperatureColors[int(idx)]
}
