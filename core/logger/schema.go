package logger

import "strings"

var allowedLevels = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

var allowedOutcome = map[string]struct{}{
	"ok":        {},
	"fail":      {},
	"skip":      {},
	"forbidden": {},
	"not_found": {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

// defaultKeyOrder keeps correlation keys first and domain keys next so lines scan well.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"op",
	"cb_key",
	"lead_id",
	"lead_status",
	"source",
	"step",
	"channel",
	"outcome",
	"duration_ms",
	"delivered",
	"failed",
	"count",
	"method",
	"path",
	"http_code",
	"mode",
	"listen",
	"public_url",
	"driver",
	"db",
	"host",
	"err",
	"err_code",
	"cause",
	"attempts",
}
