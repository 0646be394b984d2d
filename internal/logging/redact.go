package logging

import (
	"log/slog"
	"strings"
)

const redacted = "[redacted]"

// sensitiveKeys never reach an output verbatim, whatever their value.
var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"authorization": {},
	"password":      {},
	"secret":        {},
}

// redactor masks configured secrets wherever they appear inside string
// values, including clone URLs and captured git output.
type redactor struct {
	secrets []string
}

func newRedactor(secrets []string) redactor {
	kept := make([]string, 0, len(secrets))
	for _, s := range secrets {
		// Very short secrets would mask unrelated text.
		if s = strings.TrimSpace(s); len(s) >= 4 {
			kept = append(kept, s)
		}
	}
	return redactor{secrets: kept}
}

func (r redactor) attr(a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, redacted)
	}
	if len(r.secrets) == 0 {
		return a
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(r.text(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			if masked := r.text(err.Error()); masked != err.Error() {
				a.Value = slog.StringValue(masked)
			}
		}
	}
	return a
}

func (r redactor) text(s string) string {
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, redacted)
	}
	return s
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	_, ok := sensitiveKeys[key]
	return ok
}
