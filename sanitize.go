package hotswap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxPacketSize bounds one encoded update packet (1MB).
	DefaultMaxPacketSize = 1 << 20
	// EnvMaxPacketSize overrides DefaultMaxPacketSize.
	EnvMaxPacketSize = "HOTSWAP_MAX_PACKET_SIZE"
)

var (
	ErrPacketTooLarge = errors.New("packet exceeds maximum allowed size")
	ErrInvalidUTF8    = errors.New("packet contains invalid UTF-8 sequences")
)

// SanitizeLine checks one line of bundler output before it is decoded. Oversized
// lines are rejected, not truncated. Terminal escape sequences and other control
// characters are stripped so they never reach logs or the overlay.
func SanitizeLine(line string) (string, error) {
	limit := maxPacketSize()
	if len(line) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrPacketTooLarge, len(line), limit)
	}
	if !utf8.ValidString(line) {
		return "", ErrInvalidUTF8
	}
	if strings.IndexFunc(line, isUnsafeControl) < 0 {
		return line, nil
	}
	return strings.Map(func(r rune) rune {
		if isUnsafeControl(r) {
			return -1
		}
		return r
	}, line), nil
}

func isUnsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\t'
}

func maxPacketSize() int {
	if val := os.Getenv(EnvMaxPacketSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxPacketSize
}
