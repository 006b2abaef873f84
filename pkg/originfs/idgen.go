package originfs

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"math/big"
	"strconv"
	"time"
)

const tokenCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// IDLength is the number of hex characters in a record identifier.
const IDLength = 32

// NewID returns a fresh record identifier for owner: the first 32 hex
// characters of SHA-1 over a random token, the current epoch milliseconds
// and the owner name. Uniqueness is probabilistic.
func NewID(owner string) string {
	return idAt(owner, randomToken(16), time.Now())
}

func idAt(owner, token string, now time.Time) string {
	data := token + strconv.FormatInt(now.UnixMilli(), 10) + owner
	sum := sha1.Sum([]byte(data))
	return hex.EncodeToString(sum[:])[:IDLength]
}

func randomToken(n int) string {
	max := big.NewInt(int64(len(tokenCharset)))
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("originfs: crypto/rand unavailable: " + err.Error())
		}
		b[i] = tokenCharset[v.Int64()]
	}
	return string(b)
}
