package kfmt

import "fmt"

// formatValue renders a structured log field. Unsigned integers, which in
// this code base are nearly always addresses or frame numbers, are printed
// in hex.
func formatValue(v interface{}) string {
	switch t := v.(type) {
	case uintptr:
		return fmt.Sprintf("0x%x", t)
	case uint64:
		return fmt.Sprintf("0x%x", t)
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
