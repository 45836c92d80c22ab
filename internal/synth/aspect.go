package synth

import (
	"fmt"
	"strconv"
	"strings"
)

const DefaultAspectRatio = "1:1"

var supportedAspectRatios = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}

func SupportedAspectRatios() []string {
	return append([]string(nil), supportedAspectRatios...)
}

// NormalizeAspectRatio canonicalizes "W:H" (whitespace, leading zeros) and
// returns "" for anything that is not a pair of positive integers.
func NormalizeAspectRatio(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return ""
	}
	a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errA != nil || errB != nil || a <= 0 || b <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", a, b)
}

func IsSupportedAspectRatio(value string) bool {
	norm := NormalizeAspectRatio(value)
	for _, ar := range supportedAspectRatios {
		if ar == norm {
			return true
		}
	}
	return false
}
