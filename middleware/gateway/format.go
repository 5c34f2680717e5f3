package gateway

import (
	"math"
	"strconv"
	"time"
)

// formatação de valores numéricos em headers, sem fmt e sem notação científica.

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// retryAfterSeconds arredonda para cima: Retry-After nunca deve ser menor que a espera real.
func retryAfterSeconds(d time.Duration) string {
	if d <= 0 {
		return "1"
	}
	return formatInt(int64(math.Ceil(d.Seconds())))
}
