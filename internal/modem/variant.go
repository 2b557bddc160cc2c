package modem

import "strings"

// Variant is a supported SIMCom module.
type Variant int

const (
	VariantUnknown Variant = iota
	VariantSIM7000A
	VariantSIM7000C
	VariantSIM7000E
	VariantSIM7000G
	VariantSIM7500A
	VariantSIM7500E
	VariantSIM7100E
)

var variantNames = []struct {
	v    Variant
	name string
}{
	{VariantSIM7000A, "SIM7000A"},
	{VariantSIM7000C, "SIM7000C"},
	{VariantSIM7000E, "SIM7000E"},
	{VariantSIM7000G, "SIM7000G"},
	{VariantSIM7500A, "SIM7500A"},
	{VariantSIM7500E, "SIM7500E"},
	{VariantSIM7100E, "SIM7100E"},
}

// GNSSDialect selects the AT command set used to read a position.
type GNSSDialect int

const (
	GNSSNone GNSSDialect = iota
	// GNSSCGNSINF is AT+CGNSPWR / AT+CGNSINF.
	GNSSCGNSINF
	// GNSSCGPSINFO is AT+CGPS / AT+CGPSINFO.
	GNSSCGPSINFO
)

// DetectVariant finds the variant named in a model identification response.
func DetectVariant(lines ...string) Variant {
	for _, line := range lines {
		upper := strings.ToUpper(line)
		for _, vn := range variantNames {
			if strings.Contains(upper, vn.name) {
				return vn.v
			}
		}
	}
	return VariantUnknown
}

func (v Variant) String() string {
	for _, vn := range variantNames {
		if vn.v == v {
			return vn.name
		}
	}
	return "unknown"
}

func (v Variant) family() string {
	switch v {
	case VariantSIM7000A, VariantSIM7000C, VariantSIM7000E, VariantSIM7000G:
		return "SIM7000"
	case VariantSIM7500A, VariantSIM7500E:
		return "SIM7500"
	case VariantSIM7100E:
		return "SIM7100"
	}
	return ""
}

// SupportsBatteryPercent reports whether AT+CBC includes a charge level.
func (v Variant) SupportsBatteryPercent() bool {
	return v.family() == "SIM7000"
}

// SupportsNativeMQTT reports whether the module has the AT+SM* MQTT client.
func (v Variant) SupportsNativeMQTT() bool {
	return v.family() == "SIM7000"
}

func (v Variant) GNSSDialect() GNSSDialect {
	switch v.family() {
	case "SIM7000":
		return GNSSCGNSINF
	case "SIM7500", "SIM7100":
		return GNSSCGPSINFO
	}
	return GNSSNone
}

// GNSSPowerCommand returns the command that starts the GNSS engine.
func (v Variant) GNSSPowerCommand() string {
	switch v.GNSSDialect() {
	case GNSSCGNSINF:
		return "AT+CGNSPWR=1"
	case GNSSCGPSINFO:
		return "AT+CGPS=1,1"
	}
	return ""
}
