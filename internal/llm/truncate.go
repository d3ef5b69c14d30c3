package llm

// TruncationMarker replaces the dropped middle of an over-long document.
const TruncationMarker = "\n\n[...middle section truncated...]\n\n"

// Truncate keeps text within max characters of content by keeping the first
// headFraction of the budget and the remainder from the end. The marker is
// added on top of the budget. Lengths are counted in runes.
func Truncate(text string, max int, headFraction float64) string {
	if max <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	if headFraction <= 0 || headFraction >= 1 {
		headFraction = 0.6
	}
	head := int(float64(max) * headFraction)
	tail := max - head
	return string(r[:head]) + TruncationMarker + string(r[len(r)-tail:])
}
