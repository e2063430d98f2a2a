/*
Package randx generates identifiers from crypto/rand.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

const (
	// Base62Chars is the alphabet used for random suffixes.
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// RoomSuffixLength is the number of random characters in a room id.
	RoomSuffixLength = 9
)

var base62Len = big.NewInt(int64(len(Base62Chars)))

// Base62 returns n random base62 characters.
func Base62(n int) (string, error) {
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, base62Len)
		if err != nil {
			return "", fmt.Errorf("randx: read random: %w", err)
		}
		out[i] = Base62Chars[v.Int64()]
	}
	return string(out), nil
}

// RoomID returns "room_<unix millis>_<random>". Ids created later sort after
// earlier ones on the millisecond component.
func RoomID(now time.Time) (string, error) {
	suffix, err := Base62(RoomSuffixLength)
	if err != nil {
		return "", err
	}
	return "room_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix, nil
}
