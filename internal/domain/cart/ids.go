package cart

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	orderNumberPrefix   = "ORD"
	invoiceNumberPrefix = "INV"
	suffixLen           = 9
	base36              = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// idSource produces the locally generated identifiers of an order.
type idSource struct {
	rnd *rand.Rand // nil means the global source
}

func (s idSource) intN(n int) int {
	if s.rnd != nil {
		return s.rnd.IntN(n)
	}
	return rand.IntN(n)
}

// orderID returns a time-ordered UUID (version 7).
func (s idSource) orderID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// number formats "<prefix>-<unix millis>-<9 random base36 chars>".
func (s idSource) number(prefix string, now time.Time) string {
	var b strings.Builder
	b.Grow(len(prefix) + 2 + 13 + suffixLen)
	b.WriteString(prefix)
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('-')
	for range suffixLen {
		b.WriteByte(base36[s.intN(len(base36))])
	}
	return b.String()
}
