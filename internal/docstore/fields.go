package docstore

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// TimeLayout is how timestamps are written by stores that have no native
// timestamp type. It is fixed width and UTC so that string order equals time
// order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func String(doc Document, key string) string {
	if s, ok := doc[key].(string); ok {
		return s
	}
	return ""
}

func Bool(doc Document, key string) bool {
	if b, ok := doc[key].(bool); ok {
		return b
	}
	return false
}

func Int(doc Document, key string) int64 {
	n, _ := toInt64(doc[key])
	return n
}

// Time reads a timestamp field. The second result is false when the field
// is missing or holds something that is not a timestamp.
func Time(doc Document, key string) (time.Time, bool) {
	switch v := doc[key].(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(TimeLayout, v); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// normalize converts values to the canonical types documented on Document.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float32:
		return float64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return f
	case time.Time:
		return n.UTC()
	}
	return v
}

// compare orders two field values. ok is false when the values are not
// comparable with each other.
func compare(a, b any) (cmp int, ok bool) {
	if ta, isTime := a.(time.Time); isTime {
		tb, isTime := asTime(b)
		if !isTime {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	if tb, isTime := b.(time.Time); isTime {
		ta, isTime := asTime(a)
		if !isTime {
			return 0, false
		}
		return ta.Compare(tb), true
	}

	if fa, isNum := toFloat64(a); isNum {
		fb, isNum := toFloat64(b)
		if !isNum {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		case math.IsNaN(fa) || math.IsNaN(fb):
			return 0, false
		}
		return 0, true
	}

	switch va := a.(type) {
	case string:
		vb, isStr := b.(string)
		if !isStr {
			return 0, false
		}
		return strings.Compare(va, vb), true
	case bool:
		vb, isBool := b.(bool)
		if !isBool {
			return 0, false
		}
		switch {
		case va == vb:
			return 0, true
		case !va:
			return -1, true
		}
		return 1, true
	case nil:
		return 0, b == nil
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	return Time(Document{"v": v}, "v")
}

func matches(doc Document, f Filter) bool {
	v, present := doc[f.Field]
	if !present {
		return false
	}
	c, ok := compare(v, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEqual:
		return c == 0
	case OpLess:
		return c < 0
	case OpLessOrEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterOrEqual:
		return c >= 0
	}
	return false
}
