package logging

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
)

const redactedValue = "***"

// redactedKeys is an always-on log-time redactor, covering live
// request/response traffic that config-load-time redaction alone never
// reaches.
var redactedKeys = map[string]bool{
	"PUMPAMP_API_KEY":         true,
	"api_key":                 true,
	"apiKey":                  true,
	"api_secret":              true,
	"apiSecret":               true,
	"authorization":           true,
	"Authorization":           true,
	"x-mbx-apikey":            true,
	"kalshi-access-signature": true,
	"kalshi-access-key":       true,
	"private_key":             true,
	"privateKey":              true,
	"passphrase":              true,
	"signature":               true,
}

// redactingHandler wraps a base slog.Handler and rewrites attribute values
// by key name, plus strips query strings from any attribute that looks like
// a URL (key ends in "url"/"endpoint", or the value parses with a non-empty
// RawQuery).
type redactingHandler struct {
	base slog.Handler
}

func newRedactingHandler(base slog.Handler) *redactingHandler {
	return &redactingHandler{base: base}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(redactAttr(a))
		return true
	})
	return h.base.Handle(ctx, nr)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &redactingHandler{base: h.base.WithAttrs(redacted)}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{base: h.base.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if redactedKeys[a.Key] {
		return slog.String(a.Key, redactedValue)
	}
	if looksLikeURLKey(a.Key) && a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, stripQuery(a.Value.String()))
	}
	if a.Value.Kind() == slog.KindString {
		if stripped, changed := stripQueryIfURL(a.Value.String()); changed {
			return slog.String(a.Key, stripped)
		}
	}
	return a
}

func looksLikeURLKey(key string) bool {
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, "url") || strings.HasSuffix(lower, "endpoint")
}

func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}

// stripQueryIfURL only strips when raw parses as an absolute URL with a
// non-empty query string, so ordinary string attributes pass through
// unchanged.
func stripQueryIfURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.RawQuery == "" {
		return raw, false
	}
	u.RawQuery = ""
	return u.String(), true
}
