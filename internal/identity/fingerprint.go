package identity

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Environment holds the live signals folded into the device fingerprint.
type Environment struct {
	UserAgent      string
	Language       string
	ScreenWidth    int
	ScreenHeight   int
	TimezoneOffset int // minutes from UTC
}

// DetectEnvironment samples the host process the way the browser build
// sampled navigator/screen. Values only need to be stable within a session.
func DetectEnvironment() Environment {
	_, offsetSeconds := time.Now().Zone()
	return Environment{
		UserAgent:      fmt.Sprintf("supportwidget/1.0 (%s; %s)", runtime.GOOS, runtime.GOARCH),
		Language:       os.Getenv("LANG"),
		TimezoneOffset: offsetSeconds / 60,
	}
}

// DeviceHash derives the opaque bucketing key for this profile: environment
// signals plus a persisted random device id, folded by a non-cryptographic
// string hash. It is stable per profile and is not a security token.
func (r *Resolver) DeviceHash(env Environment) (string, error) {
	deviceID := r.store.Get(deviceIDKey)
	if deviceID == "" {
		deviceID = strings.ReplaceAll(uuid.NewString(), "-", "")
		if err := r.store.Set(deviceIDKey, deviceID); err != nil {
			return "", fmt.Errorf("persisting device id: %w", err)
		}
	}

	parts := []string{
		env.UserAgent,
		env.Language,
		strconv.Itoa(env.ScreenWidth),
		strconv.Itoa(env.ScreenHeight),
		strconv.Itoa(env.TimezoneOffset),
		deviceID,
	}
	return foldHash(strings.Join(parts, "|")), nil
}

// foldHash is the classic shift-and-subtract string hash. Order-sensitive,
// deterministic, 32-bit, rendered as hex. Deliberately not a cryptographic
// primitive: the result is a bucketing key, nothing authenticates against it.
func foldHash(s string) string {
	var h int32
	for _, b := range []byte(s) {
		h = (h << 5) - h + int32(b)
	}
	return strconv.FormatInt(int64(h), 16)
}
