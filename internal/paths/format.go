package paths

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// InfinityLimit is what the device accepts in place of an infinite limit.
const InfinityLimit = 1000000

// FormatValue renders a value in the device's command grammar.
// Booleans become True/False, infinities are clamped to InfinityLimit and
// numbers never use exponent notation.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case int:
		return decimal.NewFromInt(int64(val)).String()
	case int32:
		return decimal.NewFromInt32(val).String()
	case int64:
		return decimal.NewFromInt(val).String()
	case uint8, uint16, uint32, uint64, int8, int16:
		return fmt.Sprintf("%d", val)
	case json.Number:
		if d, err := decimal.NewFromString(val.String()); err == nil {
			return d.String()
		}
		return val.String()
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "inf", "infinity", "+inf":
			return formatFloat(math.Inf(1))
		case "-inf", "-infinity":
			return formatFloat(math.Inf(-1))
		}
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return decimal.NewFromInt(InfinityLimit).String()
	case math.IsInf(f, -1):
		return decimal.NewFromInt(-InfinityLimit).String()
	case math.IsNaN(f):
		return "nan"
	}
	return decimal.NewFromFloat(f).String()
}

// Assignment renders "<target> = <value>".
func Assignment(target string, value any) string {
	return target + " = " + FormatValue(value)
}
