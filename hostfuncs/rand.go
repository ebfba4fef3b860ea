package hostfuncs

import (
	"crypto/rand"

	"github.com/larch-dev/larch-host/domain/entities"
)

// RandomBytes returns count bytes from the OS CSPRNG, capped at
// MaxRandomBytesPerCall. Denied or failed reads return an empty buffer;
// the guest sees fewer bytes than asked for, never an error. Exposed as a
// direct scalar-argument export rather than a tagged handler.
func (hc *HostContext) RandomBytes(count uint32) []byte {
	if err := CheckPermission(hc.pluginName, "randomness", hc.permissions.Randomness); err != nil {
		return nil
	}
	if count > entities.MaxRandomBytesPerCall {
		count = entities.MaxRandomBytesPerCall
	}
	buf := make([]byte, count)
	if _, err := rand.Read(buf); err != nil {
		hc.logger.Warn("random_bytes failed", "plugin", hc.pluginName, "error", err)
		return nil
	}
	return buf
}
