package broker

import (
	"log/slog"
	"time"
)

// Credential is a bearer token for one scope. It is never persisted.
type Credential struct {
	Scope      string
	Token      string
	AccountID  string
	ObtainedAt time.Time
}

// LogValue implements slog.LogValuer so the token never reaches a log sink.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("scope", c.Scope),
		slog.String("account", c.AccountID),
		slog.Time("obtained_at", c.ObtainedAt),
		slog.String("token", Redact(c.Token)),
	)
}

// Redact keeps at most the last four characters of a secret.
func Redact(secret string) string {
	const visible = 4
	if len(secret) <= visible*2 {
		return "****"
	}

	return "****" + secret[len(secret)-visible:]
}
