package market

import (
	"strings"
)

// Category groups pairs on the watchlist.
type Category string

const (
	Forex   Category = "Forex"
	Indices Category = "Indices"
	Futures Category = "Futures"
)

// Pair is an instrument that can be journaled.
type Pair struct {
	ID       string
	Name     string
	Category Category
}

// Pairs is the fixed catalog, in display order.
var Pairs = []Pair{
	{"18", "AUDCAD", Forex},
	{"19", "AUDCHF", Forex},
	{"1", "AUDJPY", Forex},
	{"20", "AUDNZD", Forex},
	{"2", "AUDUSD", Forex},
	{"21", "CADCHF", Forex},
	{"3", "CADJPY", Forex},
	{"4", "CHFJPY", Forex},
	{"5", "EURAUD", Forex},
	{"22", "EURCAD", Forex},
	{"6", "EURCHF", Forex},
	{"7", "EURGBP", Forex},
	{"8", "EURJPY", Forex},
	{"23", "EURNZD", Forex},
	{"9", "EURUSD", Forex},
	{"24", "GBPAUD", Forex},
	{"10", "GBPCAD", Forex},
	{"25", "GBPCHF", Forex},
	{"11", "GBPJPY", Forex},
	{"26", "GBPNZD", Forex},
	{"12", "GBPUSD", Forex},
	{"27", "NZDCAD", Forex},
	{"28", "NZDCHF", Forex},
	{"13", "NZDJPY", Forex},
	{"14", "NZDUSD", Forex},
	{"15", "USDCAD", Forex},
	{"16", "USDCHF", Forex},
	{"17", "USDJPY", Forex},
	{"29", "XAGUSD", Forex},
	{"30", "XAUUSD", Forex},
	{"33", "DJI", Indices},
	{"36", "DXY", Indices},
	{"35", "FTSE", Indices},
	{"40", "NAS100", Indices},
	{"32", "NDX", Indices},
	{"34", "RUT", Indices},
	{"31", "SPX", Indices},
	{"37", "UKOIL", Indices},
	{"39", "US500", Indices},
	{"38", "USOIL", Indices},
	{"42", "CL1!", Futures},
	{"43", "GC1!", Futures},
	{"41", "WTI", Futures},
}

var (
	byID   = map[string]Pair{}
	byName = map[string]Pair{}
)

func init() {
	for _, p := range Pairs {
		byID[p.ID] = p
		byName[strings.ToUpper(p.Name)] = p
	}
}

// Lookup finds a pair by id or by name. Names are case-insensitive and may
// be written with a separator, e.g. "eur_usd" or "EUR/USD".
func Lookup(s string) (Pair, bool) {
	if p, ok := byID[s]; ok {
		return p, true
	}
	n := strings.ToUpper(strings.NewReplacer("_", "", "/", "", "-", "").Replace(strings.TrimSpace(s)))
	p, ok := byName[n]
	return p, ok
}

// Name returns the display name for a pair id, or the id itself when the
// pair is not in the catalog.
func Name(id string) string {
	if p, ok := byID[id]; ok {
		return p.Name
	}
	return id
}
