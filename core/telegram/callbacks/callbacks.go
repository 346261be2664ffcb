// Package callbacks encodes and decodes inline button payloads.
//
// Telebot sends buttons created with ReplyMarkup.Data as "\f<unique>|<payload>".
// Everything after the first separator belongs to the payload, so payloads may
// contain the separator themselves.
package callbacks

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
)

const (
	// Prefix marks data produced by telebot unique buttons.
	Prefix = "\f"
	// Sep separates the unique key from its payload.
	Sep = "|"
	// MaxDataLen is the Bot API limit for callback_data in bytes.
	MaxDataLen = 64
)

// ErrTooLong is returned when encoded data would exceed MaxDataLen.
var ErrTooLong = errors.New("callback data exceeds 64 bytes")

// Encode builds callback data for key and payload in telebot's wire form.
func Encode(key, payload string) (string, error) {
	if key == "" || strings.Contains(key, Sep) {
		return "", fmt.Errorf("invalid callback key %q", key)
	}
	data := Prefix + key
	if payload != "" {
		data += Sep + payload
	}
	if len(data) > MaxDataLen {
		return "", fmt.Errorf("%w: %d bytes for key %s", ErrTooLong, len(data), key)
	}
	return data, nil
}

// Parse splits raw callback data into unique key and payload.
func Parse(data string) (string, string) {
	raw := strings.TrimPrefix(data, Prefix)
	key, payload, _ := strings.Cut(raw, Sep)
	return strings.TrimSpace(key), payload
}

// FromCallback returns key and payload for cb. Telebot fills Unique only when a
// handler was registered for that exact endpoint, so Data is the fallback.
func FromCallback(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	return Parse(cb.Data)
}

// Key returns the unique key of the current callback.
func Key(c tele.Context) string {
	k, _ := FromCallback(c.Callback())
	return k
}

// Payload returns the payload of the current callback.
func Payload(c tele.Context) string {
	_, p := FromCallback(c.Callback())
	return p
}
