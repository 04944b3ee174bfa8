// Package barcode validates the retail barcode symbologies a pantry scanner
// produces.
package barcode

import (
	"errors"
	"fmt"
)

type Symbology string

const (
	EAN13 Symbology = "ean13"
	UPCA  Symbology = "upca"
	EAN8  Symbology = "ean8"
)

var (
	ErrEmpty      = errors.New("barcode is empty")
	ErrNotNumeric = errors.New("barcode must contain only digits")
	ErrLength     = errors.New("barcode must have 8, 12 or 13 digits")
	ErrCheckDigit = errors.New("barcode check digit does not match")
)

// Validate checks the length and GS1 check digit of code and reports which
// symbology it belongs to.
func Validate(code string) (Symbology, error) {
	if code == "" {
		return "", ErrEmpty
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", ErrNotNumeric
		}
	}

	var sym Symbology
	switch len(code) {
	case 13:
		sym = EAN13
	case 12:
		sym = UPCA
	case 8:
		sym = EAN8
	default:
		return "", fmt.Errorf("%w: got %d", ErrLength, len(code))
	}

	want := CheckDigit(code[:len(code)-1])
	if got := int(code[len(code)-1] - '0'); got != want {
		return "", ErrCheckDigit
	}
	return sym, nil
}

// CheckDigit computes the GS1 mod-10 check digit for a digit string without
// its final check digit. Weights alternate 3,1 starting from the rightmost
// digit.
func CheckDigit(digits string) int {
	sum := 0
	weight := 3
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}
	return (10 - sum%10) % 10
}
