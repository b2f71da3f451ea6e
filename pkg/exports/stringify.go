package exports

import (
	"fmt"
	"time"

	"github.com/phase-edms/phase/pkg/doctype"
)

// NotCommunicated is displayed for missing values.
const NotCommunicated = "NC"

// Stringify formats a value for a document listing: NC for nil, Yes/No for
// booleans, ISO dates for times.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return NotCommunicated
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case time.Time:
		return val.Format(doctype.DateLayout)
	case *time.Time:
		if val == nil {
			return NotCommunicated
		}
		return val.Format(doctype.DateLayout)
	case *string:
		if val == nil {
			return NotCommunicated
		}
		return *val
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
