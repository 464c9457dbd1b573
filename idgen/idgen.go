// CLAUDE:SUMMARY Pluggable ID generators — UUIDv7 documents and events, NanoID preview sessions and trace ids, live-upload document ids.
// Package idgen provides pluggable ID generation for eCabinet.
//
// Stores, the preview session registry and the live-meeting uploader accept a
// Generator, so the ID strategy is a startup-time decision and tests can pin it.
package idgen

import (
	"crypto/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

const nanoAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NanoID returns a Generator of lowercase base-36 IDs of the given length.
// Preview session ids and trace ids use it: short-lived, and they travel in
// URLs and headers.
func NanoID(length int) Generator {
	// Bytes at or above limit are rejected so every symbol is equally likely.
	const limit = 256 - 256%len(nanoAlphabet)
	return func() string {
		out := make([]byte, 0, length)
		buf := make([]byte, length+length/4+1)
		for len(out) < length {
			if _, err := rand.Read(buf); err != nil {
				panic("idgen: crypto/rand failed: " + err.Error())
			}
			for _, b := range buf {
				if int(b) >= limit {
					continue
				}
				out = append(out, nanoAlphabet[int(b)%len(nanoAlphabet)])
				if len(out) == length {
					break
				}
			}
		}
		return string(out)
	}
}

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings. They sort by
// creation time, which keeps document and event ids roughly chronological.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed prefix to every ID ("doc-", "evt_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Document is the id of a document uploaded outside a live meeting.
var Document Generator = Prefixed("doc-", UUIDv7())

// LiveDocument returns the id given to the i-th file of a live-meeting upload
// batch: "doc-live-<unix ms>-<i>". All files of one batch share the timestamp.
func LiveDocument(now time.Time, i int) string {
	return "doc-live-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.Itoa(i)
}
