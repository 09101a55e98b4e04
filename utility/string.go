package utility

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ToInt converts a string to an integer, zero on failure
func ToInt(s string) int {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}

// FormatRupiah renders an integer amount for user-facing messages
func FormatRupiah(amount int) string {
	return fmt.Sprintf("Rp %d", amount)
}

func NewUUID() string {
	return uuid.New().String()
}
