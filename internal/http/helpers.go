package http

import (
	"fmt"
	"strconv"
	"strings"

	"finanzapp/internal/core"
)

// formatEuros formats money as a Euro currency string (e.g., "€12,34").
func formatEuros(m core.Money) string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	euros := cents / 100
	rem := cents % 100
	s := strconv.FormatInt(euros, 10) + "," + fmt.Sprintf("%02d", rem)
	if neg {
		return "-€" + s
	}
	return "€" + s
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// eurosPtr reports optional money in euros, the unit of every JSON amount.
func eurosPtr(m *core.Money) *float64 {
	if m == nil {
		return nil
	}
	v := m.Euros()
	return &v
}
