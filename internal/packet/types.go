package packet

import (
	"sort"
	"strconv"
)

// typeNames maps GCN packet type codes to their mnemonics, following the
// socket packet definition document (07 Dec 2021). Many sources are retired
// but stay listed so old archives and replays keep resolving.
var typeNames = map[int32]string{
	// Basic / system.
	1: "BATSE_ORIGINAL",
	2: "TEST",
	3: "IMALIVE",
	4: "KILL",

	// BATSE.
	11: "BATSE_MAXBC",
	21: "BRADFORD_TEST",
	22: "BATSE_FINAL",
	24: "BATSE_LOCBURST",

	25: "ALEXIS",

	// RXTE.
	26: "RXTE_PCA_ALERT",
	27: "RXTE_PCA",
	28: "RXTE_ASM_ALERT",
	29: "RXTE_ASM",

	30: "COMPTEL",

	// IPN.
	31: "IPN_RAW",
	32: "IPN_SEGMENT",

	// BeppoSAX.
	33: "SAX_WFC_ALERT",
	34: "SAX_WFC",
	35: "SAX_NFI_ALERT",
	36: "SAX_NFI",

	37: "RXTE_ASM_XTRANS",
	38: "SPARE_TESTING",
	39: "IPN_POSITION",

	// HETE.
	40: "HETE_S/C_ALERT",
	41: "HETE_S/C_UPDATE",
	42: "HETE_S/C_LAST",
	43: "HETE_GNDANA",
	44: "HETE_TEST",

	45: "GRB_COUNTERPART",
	46: "SWIFT_TOO_FOM_OBSERVE",
	47: "SWIFT_TOO_SC_SLEW",
	48: "DOW_TOD_TEST",

	// INTEGRAL.
	51: "INTEGRAL_POINTDIR",
	52: "INTEGRAL_SPIACS",
	53: "INTEGRAL_WAKEUP",
	54: "INTEGRAL_REFINED",
	55: "INTEGRAL_OFFLINE",
	56: "INTEGRAL_WEAK",

	57: "AAVSO",
	58: "MILAGRO",
	59: "KONUS_LIGHTCURVE",

	// Swift.
	60:  "SWIFT_BAT_GRB_ALERT",
	61:  "SWIFT_BAT_GRB_POSITION",
	62:  "SWIFT_BAT_GRB_NACK",
	63:  "SWIFT_BAT_GRB_LC",
	64:  "SWIFT_BAT_SCALED_MAP",
	65:  "SWIFT_FOM_OBSERVE",
	66:  "SWIFT_SC_SLEW",
	67:  "SWIFT_XRT_POSITION",
	68:  "SWIFT_XRT_SPECTRUM",
	69:  "SWIFT_XRT_IMAGE",
	70:  "SWIFT_XRT_LIGHTCURVE",
	71:  "SWIFT_XRT_NACK_POSITION",
	72:  "SWIFT_UVOT_IMAGE",
	73:  "SWIFT_UVOT_SRC_LIST",
	76:  "SWIFT_BAT_GRB_PROC_LC",
	77:  "SWIFT_XRT_PROC_SPECTRUM",
	78:  "SWIFT_XRT_PROC_IMAGE",
	79:  "SWIFT_UVOT_PROC_IMAGE",
	80:  "SWIFT_UVOT_PROC_SRC_LIST",
	81:  "SWIFT_UVOT_POSITION",
	82:  "SWIFT_BAT_GRB_POS_TEST",
	83:  "SWIFT_POINTDIR",
	84:  "SWIFT_BAT_TRANS",
	85:  "SWIFT_XRT_THRESHPIX",
	86:  "SWIFT_XRT_THRESHPIX_PROC",
	87:  "SWIFT_XRT_SPER",
	88:  "SWIFT_XRT_SPER_PROC",
	89:  "SWIFT_UVOT_NACK_POSITION",
	97:  "SWIFT_BAT_QUICKLOOK_POSITION",
	98:  "SWIFT_BAT_SUBTHRESHOLD_POSITION",
	99:  "SWIFT_BAT_SLEW_GRB_POSITION",
	103: "SWIFT_ACTUAL_POINTDIR",
	133: "SWIFT_BAT_MONITOR",
	140: "SWIFT_BAT_SUB_SUB_THRESH_POS",
	141: "SWIFT_BAT_KNOWN_SRC_POS",

	// SuperAGILE / AGILE.
	100: "SUPERAGILE_GRB_WAKEUP",
	101: "SUPERAGILE_GRB_GROUND",
	102: "SUPERAGILE_GRB_REFINED",
	105: "AGILE_MCAL_ALERT",
	107: "AGILE_POINTDIR",
	109: "SUPERAGILE_GRB_POS_TEST",

	// Fermi GBM.
	110: "FERMI_GBM_ALERT",
	111: "FERMI_GBM_FLT_POS",
	112: "FERMI_GBM_GND_POS",
	114: "FERMI_GBM_GND_INTERNAL",
	115: "FERMI_GBM_FINAL_POS",
	116: "FERMI_GBM_ALERT_INTERNAL",
	117: "FERMI_GBM_FLT_INTERNAL",
	119: "FERMI_GBM_POS_TEST",
	131: "FERMI_GBM_SUBTHRESHOLD",

	// Fermi LAT.
	120: "FERMI_LAT_GRB_POS_INI",
	121: "FERMI_LAT_GRB_POS_UPD",
	122: "FERMI_LAT_GRB_POS_DIAG",
	123: "FERMI_LAT_TRANS",
	124: "FERMI_LAT_GRB_POS_TEST",
	125: "FERMI_LAT_MONITOR",
	126: "FERMI_SC_SLEW",
	127: "FERMI_LAT_GND",
	128: "FERMI_LAT_OFFLINE",
	129: "FERMI_POINTDIR",
	144: "FERMI_SC_SLEW_INTERNAL",
	146: "FERMI_GBM_FIN_POS_INTERNAL",

	// Misc.
	130: "SIMBAD_NED_SEARCH_RESULTS",
	134: "MAXI_UNKNOWN_SOURCE",
	135: "MAXI_KNOWN_SOURCE",
	136: "MAXI_TEST",
	137: "OGLE",
	139: "MOA",
	145: "COINCIDENCE",
	148: "SUZAKU_LIGHTCURVE",
	149: "SNEWS",

	// LIGO/Virgo/KAGRA.
	150: "LVC_PRELIMINARY",
	151: "LVC_INITIAL",
	152: "LVC_UPDATE",
	153: "LVC_TEST",
	154: "LVC_COUNTERPART",
	163: "LVC_EARLY_WARNING",
	164: "LVC_RETRACTION",

	// AMON / IceCube and neighbours.
	157: "AMON_ICECUBE_COINC",
	158: "AMON_ICECUBE_HESE",
	159: "AMON_ICECUBE_TEST",
	160: "CALET_GBM_FLT_LC",
	161: "CALET_GBM_GND_LC",
	166: "AMON_ICECUBE_CLUSTER",
	168: "GWHEN_COINC",
	169: "AMON_ICECUBE_EHE",
	170: "AMON_ANTARES_FERMILAT_COINC",
	171: "HAWC_BURST_MONITOR",
	172: "AMON_NU_EM_COINC",
	173: "ICECUBE_ASTROTRACK_GOLD",
	174: "ICECUBE_ASTROTRACK_BRONZE",
	175: "SK_SUPERNOVA",
	176: "AMON_ICECUBE_CASCADE",

	// GECAM.
	188: "GECAM_FLT",
	189: "GECAM_GND",
}

// typeCodes is the reverse of typeNames, built once at init.
var typeCodes = func() map[string]int32 {
	m := make(map[string]int32, len(typeNames))
	for code, name := range typeNames {
		m[name] = code
	}
	return m
}()

// TypeName returns the mnemonic for a packet type code. Codes missing from
// the table resolve to "UNKNOWN_<code>".
func TypeName(code int32) string {
	if name, ok := typeNames[code]; ok {
		return name
	}
	return "UNKNOWN_" + strconv.FormatInt(int64(code), 10)
}

// TypeCode is the reverse lookup of TypeName for known mnemonics.
func TypeCode(name string) (int32, bool) {
	code, ok := typeCodes[name]
	return code, ok
}

// TypeEntry is a single row of the type table.
type TypeEntry struct {
	Code int32  `json:"code"`
	Name string `json:"name"`
}

// Types returns the full type table ordered by code.
func Types() []TypeEntry {
	entries := make([]TypeEntry, 0, len(typeNames))
	for code, name := range typeNames {
		entries = append(entries, TypeEntry{Code: code, Name: name})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Code < entries[j].Code
	})
	return entries
}
