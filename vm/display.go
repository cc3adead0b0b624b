package vm

import (
	"math"
	"strconv"
	"strings"
)

// Format renders a value for output: log, str(), map keys, and the REPL all
// share these rules. Booleans print as yes/no; whole floats print without a
// decimal point; containers recurse, with map keys double-quoted and string
// values raw.
func (h *heap) Format(v Value) string {
	var sb strings.Builder
	h.formatInto(&sb, v)
	return sb.String()
}

func (h *heap) formatInto(sb *strings.Builder, v Value) {
	switch {
	case v.IsNil():
		sb.WriteString("nil")
	case v.IsBool():
		if v.AsBool() {
			sb.WriteString("yes")
		} else {
			sb.WriteString("no")
		}
	case v.IsNumber():
		sb.WriteString(formatFloat(v.AsNumber()))
	case v.IsInteger():
		sb.WriteString(strconv.FormatInt(v.AsInteger(), 10))
	case v.IsPtr():
		obj := h.Get(v.handle())
		if obj == nil {
			sb.WriteString("<invalid>")
			return
		}
		switch obj.Kind {
		case KindString:
			sb.WriteString(obj.Str)
		case KindList:
			sb.WriteString("lst(")
			for i, el := range obj.Elems {
				if i > 0 {
					sb.WriteString(", ")
				}
				h.formatInto(sb, el)
			}
			sb.WriteByte(')')
		case KindMap:
			sb.WriteString("map(")
			for i, k := range obj.Map.Keys() {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteByte('"')
				sb.WriteString(k)
				sb.WriteString("\": ")
				val, _ := obj.Map.Get(k)
				h.formatInto(sb, val)
			}
			sb.WriteByte(')')
		case KindFunction:
			sb.WriteString("<fn ")
			sb.WriteString(obj.Fn.Name)
			sb.WriteByte('>')
		case KindIterator:
			sb.WriteString("<iterator>")
		}
	default:
		sb.WriteString("<unknown>")
	}
}

// formatFloat prints whole values in the int64 range as integers and
// infinities as inf/-inf; everything else uses the shortest exact decimal
// form.
func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// TypeName returns the name typeof reports for a value.
func (h *heap) TypeName(v Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		return "bool"
	case v.IsNumber():
		return "nb"
	case v.IsInteger():
		return "int"
	case v.IsPtr():
		obj := h.Get(v.handle())
		if obj == nil {
			return "unknown"
		}
		switch obj.Kind {
		case KindString:
			return "wrd"
		case KindList:
			return "lst"
		case KindMap:
			return "map"
		case KindFunction:
			return "fn"
		}
	}
	return "unknown"
}
