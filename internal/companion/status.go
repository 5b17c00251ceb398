package companion

import (
	"fmt"
)

// Translation keys of the status messages shown to the user
const (
	KeyStarting          = "companion_app.starting"
	KeyConnecting        = "companion_app.connecting"
	KeyConnectionSuccess = "companion_app.connection_success"
	KeyConnectionFail    = "companion_app.connection_fail"
	KeyDownloadStart     = "companion_app.download_start"
	KeyDownloadFail      = "companion_app.download_fail"
	KeyVersionUnknown    = "companion_app.version_unknown"
)

var enUS = map[string]string{
	KeyStarting:          "Starting companion app...",
	KeyConnecting:        "Connecting to companion app...",
	KeyConnectionSuccess: "Connected to companion app",
	KeyConnectionFail:    "Unable to connect to companion app",
	KeyDownloadStart:     "Downloading companion app %s (%s)...",
	KeyDownloadFail:      "Download of companion app %s failed, see the log for details",
	KeyVersionUnknown:    "Could not determine the newest companion app version, is the release server reachable?",
}

// Translate renders key with the en_us catalog. Unknown keys render as themselves.
func Translate(key string, args ...any) string {
	format, ok := enUS[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Status is a progress message emitted by StartAndConnect
type Status struct {
	// Key is the translation key, empty for download progress
	Key     string
	Message string
	// Progress is the download percentage, -1 for plain messages
	Progress int
	IsError  bool
}

// StatusFunc receives status messages as they happen
type StatusFunc func(Status)

func message(key string, isError bool, args ...any) Status {
	return Status{Key: key, Message: Translate(key, args...), Progress: -1, IsError: isError}
}

func progress(percent int) Status {
	return Status{Message: fmt.Sprintf("%d%%", percent), Progress: percent}
}
