// Package idgen produces the identifiers serialbridge attaches to bus
// clients and inbound events.
//
// Event IDs are UUIDv7 so log lines sort by arrival. Client IDs are short
// because MQTT 3.1 brokers may reject client identifiers over 23 bytes.
package idgen

import (
	"crypto/rand"
	"io"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// NanoID returns a Generator that produces base-36 IDs of the given length.
func NanoID(length int) Generator {
	return func() string {
		id, err := nanoID(rand.Reader, length)
		if err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		return id
	}
}

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// maxUnbiased is the largest multiple of len(alphabet) that fits in a byte.
// Bytes at or above it are discarded so every character is equally likely.
const maxUnbiased = 256 - 256%len(alphabet)

func nanoID(r io.Reader, length int) (string, error) {
	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)
	for len(out) < length {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Event is the generator for inbound event IDs.
var Event Generator = UUIDv7()

// ClientID is the generator for bus client identifiers: "sbridge-" plus
// 12 base-36 characters, 20 bytes total.
var ClientID Generator = Prefixed("sbridge-", NanoID(12))
