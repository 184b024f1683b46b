// Package marketdata resolves underlying prices and 0DTE options chains.
package marketdata

import (
	"fmt"
	"strconv"
	"time"

	"stonks/internal/domain"
)

// occTailLen is the fixed suffix of an OCC option symbol: six date digits,
// one call/put letter, and the strike in thousandths padded to eight digits.
const occTailLen = 15

// ParseOCC decomposes an OCC option symbol such as SPXW250825C05450000 into
// its root, expiration, type, and strike.
func ParseOCC(code string) (root string, expiration time.Time, optType domain.OptionType, strike float64, err error) {
	if len(code) <= occTailLen {
		err = fmt.Errorf("option symbol %q too short", code)
		return
	}

	root = code[:len(code)-occTailLen]
	tail := code[len(code)-occTailLen:]

	expiration, err = time.Parse("060102", tail[:6])
	if err != nil {
		err = fmt.Errorf("option symbol %q: bad expiration: %w", code, err)
		return
	}

	switch tail[6] {
	case 'C':
		optType = domain.OptionTypeCall
	case 'P':
		optType = domain.OptionTypePut
	default:
		err = fmt.Errorf("option symbol %q: bad type %q", code, tail[6])
		return
	}

	milli, perr := strconv.ParseInt(tail[7:], 10, 64)
	if perr != nil {
		err = fmt.Errorf("option symbol %q: bad strike: %w", code, perr)
		return
	}
	strike = float64(milli) / 1000
	return
}
