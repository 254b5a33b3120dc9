package tls

import "github.com/insinfo/tlslite-sub007/wire"

// Alert record levels, RFC 5246 §7.2 / RFC 8446 §6.
const (
	alertLevelWarning byte = 1
	alertLevelFatal   byte = 2
)

// encodeAlert produces the 2-byte alert record payload for kind, at
// warning level for the three warning-class kinds and fatal otherwise
//.
func encodeAlert(kind AlertKind) []byte {
	level := alertLevelFatal
	if kind.IsWarning() {
		level = alertLevelWarning
	}
	return []byte{level, byte(kind)}
}

// sendAlert transmits an alert best-effort: a failure to deliver it is
// deliberately swallowed, since the connection is being torn down anyway
//.
func (c *Conn) sendAlert(kind AlertKind) {
	if c.layer == nil {
		return
	}
	_ = c.layer.WriteRecord(wire.ContentTypeAlert, encodeAlert(kind))
}
