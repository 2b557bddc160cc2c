package mm

// ModemManager constants and enums

// Modem State
const (
	MMModemStateFailed        int32 = -1
	MMModemStateUnknown       int32 = 0
	MMModemStateInitializing  int32 = 1
	MMModemStateLocked        int32 = 2
	MMModemStateDisabled      int32 = 3
	MMModemStateDisabling     int32 = 4
	MMModemStateEnabling      int32 = 5
	MMModemStateEnabled       int32 = 6
	MMModemStateSearching     int32 = 7
	MMModemStateRegistered    int32 = 8
	MMModemStateDisconnecting int32 = 9
	MMModemStateConnecting    int32 = 10
	MMModemStateConnected     int32 = 11
)

// Location Source
const (
	MMModemLocationSource3gppLacCi    uint32 = 1 << 0
	MMModemLocationSourceGpsRaw       uint32 = 1 << 1
	MMModemLocationSourceGpsNmea      uint32 = 1 << 2
	MMModemLocationSourceGpsUnmanaged uint32 = 1 << 4
)

func ModemStateToString(state int32) string {
	switch state {
	case MMModemStateFailed:
		return "failed"
	case MMModemStateInitializing:
		return "initializing"
	case MMModemStateLocked:
		return "locked"
	case MMModemStateDisabled:
		return "disabled"
	case MMModemStateDisabling:
		return "disabling"
	case MMModemStateEnabling:
		return "enabling"
	case MMModemStateEnabled:
		return "enabled"
	case MMModemStateSearching:
		return "searching"
	case MMModemStateRegistered:
		return "registered"
	case MMModemStateDisconnecting:
		return "disconnecting"
	case MMModemStateConnecting:
		return "connecting"
	case MMModemStateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// IsReady reports whether a modem in state can carry data.
func IsReady(state int32) bool {
	return state >= MMModemStateRegistered
}
