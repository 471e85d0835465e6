package round

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/playperu/radioguessr/internal/radioguessr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Codec seals a round centre into an opaque token and opens it again.
// The token is the only round state the server keeps.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives the sealing key from secret. An empty secret gets a random
// key, so tokens stop opening after a restart.
func NewCodec(secret string) (*Codec, error) {
	var key [chacha20poly1305.KeySize]byte
	if secret == "" {
		if _, err := rand.Read(key[:]); err != nil {
			return nil, fmt.Errorf("generating round key: %w", err)
		}
	} else {
		key = blake2b.Sum256([]byte(secret))
	}

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating round cipher: %w", err)
	}
	return &Codec{aead: aead}, nil
}

type tokenPayload struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (c *Codec) Seal(center radioguessr.Coord) (string, error) {
	plain, err := json.Marshal(tokenPayload{Lat: &center.Lat, Lon: &center.Lon})
	if err != nil {
		return "", fmt.Errorf("encoding round: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open returns the centre sealed in token. Anything that was not produced by
// Seal with the same key fails with ErrInvalidRound.
func (c *Codec) Open(token string) (radioguessr.Coord, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return radioguessr.Coord{}, fmt.Errorf("%w: not base64url", radioguessr.ErrInvalidRound)
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return radioguessr.Coord{}, fmt.Errorf("%w: too short", radioguessr.ErrInvalidRound)
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return radioguessr.Coord{}, fmt.Errorf("%w: authentication failed", radioguessr.ErrInvalidRound)
	}

	var p tokenPayload
	if err := json.Unmarshal(plain, &p); err != nil {
		return radioguessr.Coord{}, fmt.Errorf("%w: %v", radioguessr.ErrInvalidRound, err)
	}
	if p.Lat == nil || p.Lon == nil || !finite(*p.Lat) || !finite(*p.Lon) {
		return radioguessr.Coord{}, fmt.Errorf("%w: round centre", radioguessr.ErrInvalidCoordinates)
	}
	return radioguessr.Coord{Lat: *p.Lat, Lon: *p.Lon}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
