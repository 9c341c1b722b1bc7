package symbols

import "strings"

// Universe represents a predefined stock universe
type Universe string

const (
	UniverseTarget Universe = "target" // Nifty 50 plus sector leaders
	UniverseCore   Universe = "core"   // registry names with known tokens
	UniverseTest   Universe = "test"   // Small set for testing
)

// GetUniverse returns the list of symbols for a given universe
func GetUniverse(u Universe) []string {
	switch u {
	case UniverseTarget:
		return TargetSymbols
	case UniverseCore:
		return CoreSymbols
	case UniverseTest:
		return TestSymbols
	default:
		return nil
	}
}

// Registry holds NSE tokens known ahead of time. It seeds the resolver cache.
var Registry = map[string]string{
	"RELIANCE-EQ":   "2885",
	"TCS-EQ":        "11536",
	"HDFCBANK-EQ":   "1333",
	"INFY-EQ":       "1594",
	"ITC-EQ":        "1660",
	"SBIN-EQ":       "3045",
	"BHARTIARTL-EQ": "10604",
	"TATAMOTORS-EQ": "3456",
	"SWIGGY-EQ":     "13781",
	"ZOMATO-EQ":     "5097",
	"NIFTY":         "99926000",
}

// CoreSymbols are the registry equities
var CoreSymbols = []string{
	"RELIANCE-EQ", "TCS-EQ", "HDFCBANK-EQ", "INFY-EQ", "ITC-EQ",
	"SBIN-EQ", "BHARTIARTL-EQ", "TATAMOTORS-EQ", "SWIGGY-EQ", "ZOMATO-EQ",
}

// TestSymbols is a small set for quick testing
var TestSymbols = []string{
	"RELIANCE-EQ", "TCS-EQ", "INFY-EQ", "ITC-EQ", "SBIN-EQ",
}

// TargetSymbols is the curated scan list, normalized to the -EQ convention
var TargetSymbols = Normalize(targetRaw)

var targetRaw = []string{
	// Nifty 50
	"RELIANCE", "HDFCBANK", "ICICIBANK", "INFY", "ITC", "TCS", "LT", "AXISBANK",
	"SBIN", "BHARTIARTL", "KOTAKBANK", "BAJFINANCE", "HINDUNILVR", "M&M", "MARUTI",
	"TITAN", "SUNPHARMA", "ASIANPAINT", "HCLTECH", "TATASTEEL", "NTPC", "POWERGRID",
	"ULTRACEMCO", "TATAMOTORS", "INDUSINDBK", "BAJAJFINSV", "NESTLEIND", "ONGC",
	"ADANIENT", "JSWSTEEL", "GRASIM", "TECHM", "HINDALCO", "ADANIPORTS", "WIPRO",
	"CIPLA", "TATACONSUM", "COALINDIA", "SBILIFE", "BRITANNIA", "DRREDDY",
	"EICHERMOT", "DIVISLAB", "APOLLOHOSP", "BAJAJ-AUTO", "HEROMOTOCO", "UPL", "LTIM",

	// Banking & finance
	"AUBANK", "BANDHANBNK", "BANKBARODA", "BANKINDIA", "CANBK", "CUB", "FEDERALBNK",
	"IDFCFIRSTB", "PNB", "RBLBANK", "IDBI", "INDIANB", "MAHABANK", "UNIONBANK", "YESBANK",
	"ABCAPITAL", "ANGELONE", "BAJAJHLDNG", "CANFINHOME", "CHOLAFIN", "CREDITACC",
	"HDFCAMC", "HDFCLIFE", "ICICIGI", "ICICIPRULI", "L&TFH", "LICHSGFIN", "LICI",
	"M&MFIN", "MANAPPURAM", "MFSL", "MUTHOOTFIN", "NAM-INDIA", "PAYTM", "PFC",
	"PIIND", "POONAWALLA", "RECLTD", "SBICARD", "SHRIRAMFIN", "SUNDARMFIN",

	// Auto
	"AMARAJABAT", "APOLLOTYRE", "ASHOKLEY", "BALKRISIND", "BHARATFORG", "BOSCHLTD",
	"EXIDEIND", "MRF", "MOTHERSON", "SONACOMS", "TVSMOTOR", "TIINDIA", "UNO_MINDA",
	"ESCORTS", "CUMMINSIND", "ENDURANCE", "SCHAEFFLER", "SONABLW",

	// IT
	"COFORGE", "CYIENT", "DIXON", "HAPPSTMNDS", "INTELLECT", "KPITTECH", "L&T_TECH",
	"MASTEK", "MPHASIS", "NAUKRI", "OFSS", "PERSISTENT", "POLICYBZR", "ROUTE",
	"SONATSOFTW", "SYNGENE", "TATAELXSI", "TEJASNET", "ZENSARTECH", "ZOMATO",

	// Pharma & healthcare
	"ABBOTINDIA", "ALKEM", "AUROPHARMA", "BIOCON", "GLENMARK", "GRANULES", "GSK",
	"IPCALAB", "JBCHEPHARM", "LALPATHLAB", "LAURUSLAB", "LUPIN", "MANKIND", "MAXHEALTH",
	"METROPOLIS", "NATCOPHARM", "PFIZER", "TORNTPHARM", "ZYDUSLIFE",
	"FORTIS", "ASTERDM", "NH",

	// Energy
	"ADANIGREEN", "ADANIPOWER", "ATGL", "BPCL", "CASTROLIND", "GAIL", "GUJGASLTD",
	"HINDPETRO", "IGL", "IOC", "MGL", "MRPL", "OIL", "PETRONET",
	"SJVN", "TATAPOWER", "TORNTPOWER", "NHPC", "IEX",

	// FMCG
	"BALRAMCHIN", "BATAINDIA", "BERGERPAINT", "COLPAL", "DABUR", "EMAMILTD",
	"GODREJCP", "HATSUN", "JYOTHYLAB", "KRBL", "MARICO",
	"PAGEIND", "PATANJALI", "PGHH", "RADICO", "RELAXO", "TATA_CONSUM",
	"TTKPRESTIGE", "UBL", "UNITEDSPR", "VBL", "VARROC", "WHIRLPOOL",

	// Metals
	"APLAPOLLO", "HINDCOPPER", "HINDZINC", "JINDALSTEL", "JSL", "NATIONALUM",
	"NMDC", "RATNAMANI", "SAIL", "VEDL", "WELCORP",

	// Cement & realty
	"ACC", "AMBUJACEM", "BIRLACORPN", "DALBHARAT", "JKCEMENT",
	"RAMCOCEM", "SHREECEM", "STARCEMENT",
	"DLF", "GODREJPROP", "LODHA", "OBEROIRLTY", "PHOENIXLTD", "PRESTIGE",
	"BRIGADE", "NBCC", "NCC", "SOBHA",

	// Chemicals
	"AARTIIND", "ATUL", "CHAMBLFERT", "COROMANDEL", "DEEPAKNTR", "FLUOROCHEM",
	"GNFC", "LINDEINDIA", "NAVINFLUOR", "PIDILITIND", "SRF", "SUMICHEM",
	"TATACHEM",

	// Capital goods
	"ABB", "AIAENG", "ASTRAL", "BEL", "BHEL", "CGPOWER", "CONCOR", "ELGIEQUIP",
	"GMRINFRA", "HAL", "HAVELLS", "HONAUT", "IRCTC", "KEI", "KEC", "L&T",
	"POLYCAB", "RAILTEL", "RITES", "RVNL", "SIEMENS", "SUZLON", "THERMAX",
	"TIMKEN", "VOLTAS", "KAJARIACER",

	// Media
	"PVRINOX", "SUNTV", "ZEEL", "TV18BRDCST", "NETWORK18",

	// Others
	"ADANITRANS", "AEGISCHEM", "AFFLE", "BLUEDART", "BSOFT",
	"CENTURYTEX", "CROMPTON", "DELTACORP", "EIDPARRY", "FACT", "FSL",
	"GODREJIND", "GRAPHITE", "HEG", "HFCL", "INDHOTEL", "INDIGOPNTS",
	"INDIGO", "IRFC", "J&KBANK", "JAMNAAUTO", "JUBLFOOD", "KPRMILL",
	"MAZDOCK", "MCX", "RENUKA", "TRIDENT", "VGUARD", "VIPIND",
}

// NormalizeSymbol upper-cases a ticker and applies the -EQ suffix
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || strings.HasSuffix(s, "-EQ") {
		return s
	}
	return s + "-EQ"
}

// Normalize applies NormalizeSymbol and drops duplicates, keeping first occurrence order
func Normalize(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		n := NormalizeSymbol(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
