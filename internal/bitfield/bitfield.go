// Package bitfield decodes 16-bit hexadecimal status registers against a
// table of named flag bits and a 4-bit error code.
package bitfield

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// EmptyValue is returned for blank input.
	EmptyValue = "Empty value"

	// Lowest and highest bit positions that carry named flags. Bits 3-0 hold
	// the error code.
	MinFlagBit   = 4
	MaxFlagBit   = 15
	MaxErrorCode = 0xF

	errorCodeMask = 0x000F

	hexDigits  = "0123456789abcdefABCDEF"
	wordDigits = 4
)

// Bit names one flag of a status register.
type Bit struct {
	Name        string
	Description string
}

// Table describes one register layout. Tables are built once at load time and
// never modified afterwards.
type Table struct {
	Name       string
	Bits       map[int]Bit
	ErrorCodes map[int]string
}

// Decode renders every whitespace separated hexadecimal token of value as a
// human readable line. Tokens that are not hexadecimal yield an
// "Invalid hex" entry and decoding continues with the next token.
func Decode(value string, table *Table) []string {
	tokens := strings.Fields(value)
	if len(tokens) == 0 {
		return []string{EmptyValue}
	}
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		word, err := parseHex(tok)
		if err != nil {
			out = append(out, "Invalid hex: "+tok)
			continue
		}
		out = append(out, tok+" → "+strings.Join(table.describe(word), " | "))
	}
	return out
}

// parseHex validates the whole token and keeps the low 16 bits, so registers
// logged wider than a word still decode.
func parseHex(tok string) (uint64, error) {
	digits := tok
	if len(digits) > 2 && (digits[:2] == "0x" || digits[:2] == "0X") {
		digits = digits[2:]
	}
	if digits == "" || strings.Trim(digits, hexDigits) != "" {
		return 0, strconv.ErrSyntax
	}
	if len(digits) > wordDigits {
		digits = digits[len(digits)-wordDigits:]
	}
	return strconv.ParseUint(digits, 16, 16)
}

func (t *Table) describe(word uint64) []string {
	var parts []string
	if t != nil {
		for bit := MaxFlagBit; bit >= MinFlagBit; bit-- {
			if word&(1<<uint(bit)) == 0 {
				continue
			}
			if def, ok := t.Bits[bit]; ok {
				parts = append(parts, fmt.Sprintf("Bit %d (%s): %s", bit, def.Name, def.Description))
			}
		}
	}
	code := int(word & errorCodeMask)
	desc, ok := "", false
	if t != nil {
		desc, ok = t.ErrorCodes[code]
	}
	if !ok {
		desc = "Unknown error code"
	}
	parts = append(parts, fmt.Sprintf("Bits 3-0 (Error Code): 0x%X → %s", code, desc))
	return parts
}
