package tenda

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// fluxUnits normalizes a rate to KB/s.
var fluxUnits = map[string]float64{
	"":     1,
	"B/s":  1.0 / 1024,
	"KB/s": 1,
	"MB/s": 1024,
	"GB/s": 1024 * 1024,
}

// ParseFlux parses a firmware rate string such as "123.4KB/s" or "1.2MB/s"
// and returns the rate in KB/s.
func ParseFlux(flux string) (float64, error) {
	flux = strings.TrimSpace(flux)
	if flux == "" {
		return 0, errors.New("empty flux value")
	}

	split := strings.IndexFunc(flux, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r == '.' || r == '-' || r == '+')
	})
	number, unit := flux, ""
	if split >= 0 {
		number, unit = flux[:split], strings.TrimSpace(flux[split:])
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse flux %q", flux)
	}

	for name, multiplier := range fluxUnits {
		if strings.EqualFold(name, unit) {
			return value * multiplier, nil
		}
	}
	return 0, errors.Errorf("unknown flux unit %q", unit)
}
