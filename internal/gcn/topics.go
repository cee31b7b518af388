package gcn

import "gcn_parser/internal/packet"

// topicAliases maps the short names used in classic binary topic names to
// packet type codes, for topics whose name is not the packet mnemonic.
var topicAliases = map[string]int32{
	"KILL_SOCKET":             4,
	"ALEXIS_SRC":              25,
	"XTE_PCA_ALERT":           26,
	"XTE_PCA_SRC":             27,
	"XTE_ASM_ALERT":           28,
	"XTE_ASM_SRC":             29,
	"COMPTEL_SRC":             30,
	"IPN_SEG":                 32,
	"XTE_ASM_TRANS":           37,
	"IPN_POS":                 39,
	"HETE_ALERT_SRC":          40,
	"HETE_UPDATE_SRC":         41,
	"HETE_FINAL_SRC":          42,
	"HETE_GNDANA_SRC":         43,
	"GRB_CNTRPART":            45,
	"SWIFT_TOO_FOM":           46,
	"DOW_TOD":                 48,
	"MILAGRO_POS":             58,
	"KONUS_LC":                59,
	"SWIFT_BAT_GRB_POS_ACK":   61,
	"SWIFT_BAT_GRB_POS_NACK":  62,
	"SWIFT_BAT_SCALEDMAP":     64,
	"SWIFT_FOM_OBS":           65,
	"SWIFT_XRT_LC":            70,
	"SWIFT_XRT_CENTROID":      71,
	"SWIFT_UVOT_DBURST":       72,
	"SWIFT_UVOT_FCHART":       73,
	"SWIFT_BAT_GRB_LC_PROC":   76,
	"SWIFT_XRT_SPECTRUM_PROC": 77,
	"SWIFT_XRT_IMAGE_PROC":    78,
	"SWIFT_UVOT_DBURST_PROC":  79,
	"SWIFT_UVOT_FCHART_PROC":  80,
	"SWIFT_UVOT_POS":          81,
	"SWIFT_UVOT_POS_NACK":     89,
	"SWIFT_BAT_QL_POS":        97,
	"SWIFT_BAT_SUB_THRESHOLD": 98,
	"SWIFT_BAT_SLEW_POS":      99,
	"FERMI_GBM_FIN_POS":       115,
	"FERMI_LAT_POS_INI":       120,
	"FERMI_LAT_POS_UPD":       121,
	"FERMI_LAT_POS_DIAG":      122,
	"FERMI_LAT_POS_TEST":      124,
	"SIMBADNED":               130,
	"FERMI_GBM_SUBTHRESH":     131,
	"MAXI_UNKNOWN":            134,
	"MAXI_KNOWN":              135,
	"SWIFT_BAT_SUBSUB":        140,
	"SWIFT_BAT_KNOWN_SRC":     141,
	"SK_SN":                   175,
	"ICECUBE_CASCADE":         176,
}

// TopicTypeCode returns the packet type a classic binary topic carries.
// Topic names are either a type mnemonic or one of the network's short
// aliases. ok is false for other topics and unrecognised names.
func TopicTypeCode(topic string) (int32, bool) {
	name := TopicMnemonic(topic)
	if name == "" {
		return 0, false
	}
	if code, ok := topicAliases[name]; ok {
		return code, true
	}
	return packet.TypeCode(name)
}
