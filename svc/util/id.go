package util

import (
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
)

const (
	IDBytes          = 16
	DefaultIDRetries = 64
)

var ErrIDExhausted = errors.New("no free paste id found")

// IDGen draws 32 character lowercase hex ids from its reader.
type IDGen struct {
	rand    io.Reader
	retries int
}

func NewIDGen() *IDGen {
	return NewIDGenFrom(rand.Reader, DefaultIDRetries)
}
func NewIDGenFrom(r io.Reader, retries int) *IDGen {
	if retries <= 0 {
		retries = DefaultIDRetries
	}
	return &IDGen{rand: r, retries: retries}
}
func (g *IDGen) Next() (string, error) {
	var buf [IDBytes]byte
	if _, err := io.ReadFull(g.rand, buf[:]); err != nil {
		return "", errors.Wrap(err, "rand fail")
	}
	return hex.EncodeToString(buf[:]), nil
}

// Claim draws candidates until claim accepts one. claim reports taken=true
// when the candidate collided with an existing paste; any error aborts.
func (g *IDGen) Claim(claim func(id string) (taken bool, err error)) (string, int, error) {
	for attempt := 1; attempt <= g.retries; attempt++ {
		id, err := g.Next()
		if err != nil {
			return "", attempt, err
		}
		taken, err := claim(id)
		if err != nil {
			return "", attempt, err
		}
		if !taken {
			return id, attempt, nil
		}
	}
	return "", g.retries, errors.Wrapf(ErrIDExhausted, "%d attempts", g.retries)
}

// IsID reports whether s has the shape of a generated id. Ids become
// directory names so anything else is rejected before touching disk.
func IsID(s string) bool {
	if len(s) != IDBytes*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
