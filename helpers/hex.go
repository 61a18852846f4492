package helpers

import (
	"encoding/hex"
	"strings"
)

func MustHex(s string) []byte {
	b, err := hex.DecodeString(strings.Replace(s, " ", "", -1))
	if err != nil {
		panic(err)
	}
	return b
}

// HexSpaced formats bytes as hex in groups of 4 bytes, for frame dumps.
func HexSpaced(b []byte) string {
	h := hex.EncodeToString(b)
	hlen := len(h)
	if hlen == 0 {
		return ""
	}
	ss := make([]string, 0, (hlen+7)/8)
	for i := 0; i < hlen; i += 8 {
		hi := i + 8
		if hi > hlen {
			hi = hlen
		}
		ss = append(ss, h[i:hi])
	}
	return strings.Join(ss, " ")
}
