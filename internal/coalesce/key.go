package coalesce

import "fmt"

// Key builds the coalescer fingerprint from spec.md §4.6:
// "source:name:variant:size:stroke:color:rotate:mirror:class:format".
func Key(source, name, variant string, size int, stroke float64, color string, rotate *float64, mirror bool, class, format string) string {
	rotateStr := ""
	if rotate != nil {
		rotateStr = fmt.Sprintf("%g", *rotate)
	}
	return fmt.Sprintf("%s:%s:%s:%d:%g:%s:%s:%t:%s:%s",
		source, name, variant, size, stroke, color, rotateStr, mirror, class, format)
}
