// Package sha256 fingerprints statute text so consumers can spot amendments.
package sha256

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// Prefix tags every digest with its algorithm.
const Prefix = "sha256:"

// Hasher implements crawler.Hasher. Trailing whitespace on each line is
// ignored, so markup reflows do not change the digest.
type Hasher struct{}

// New returns a statute text hasher.
func New() Hasher {
	return Hasher{}
}

// Hash returns the prefixed hex digest of the normalized text.
func (Hasher) Hash(data []byte) (string, error) {
	h := sha256.New()
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	first := true
	for sc.Scan() {
		if !first {
			h.Write([]byte{'\n'})
		}
		first = false
		h.Write(bytes.TrimRight(sc.Bytes(), " \t\r"))
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return Prefix + hex.EncodeToString(h.Sum(nil)), nil
}
