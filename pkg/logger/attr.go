package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Owner records the account that owns a definition under the key "owner_id".
func Owner(id int64) slog.Attr {
	return slog.Int64("owner_id", id)
}

// DefinitionID records a message definition under the key "definition_id".
func DefinitionID(id int64) slog.Attr {
	return slog.Int64("definition_id", id)
}

// Recipient records the destination phone number under the key "recipient".
func Recipient(phone string) slog.Attr {
	return slog.String("recipient", phone)
}

// CorrelationID records the per-operation id under the key "correlation_id".
// An empty id yields an empty Attr.
func CorrelationID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("correlation_id", id)
}

// WindowKey records the trigger lock key under the key "window".
func WindowKey(key string) slog.Attr {
	return slog.String("window", key)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}
