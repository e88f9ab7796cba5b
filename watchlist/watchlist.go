// Package watchlist filters, sorts and groups the pair catalog for display.
package watchlist

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/market"
	"github.com/rustyeddy/tradelog/tradingday"
)

// SortKey selects the ordering and grouping of the watchlist.
type SortKey string

const (
	BySymbol   SortKey = "symbol"
	ByCategory SortKey = "category"
	ByDate     SortKey = "date"
	ByFlag     SortKey = "flag"
)

// DefaultSort is used when no sort key is given.
const DefaultSort = ByCategory

// ParseSortKey accepts symbol, category, date or flag. Empty selects the
// default.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return DefaultSort, nil
	case BySymbol, ByCategory, ByDate, ByFlag:
		return k, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// Date group headings.
const (
	HeadingToday      = "Today"
	HeadingThisMonth  = "This month"
	HeadingOlder      = "Older"
	HeadingNoAnalysis = "No analysis"
)

// DayHeadingLayout formats the heading of one of the six previous trading
// days, e.g. "Monday, 10 Feb".
const DayHeadingLayout = "Monday, 2 Jan"

// FilterSet is the set of flag colors a pair may carry to stay visible. An
// empty set lets every pair through.
type FilterSet []journal.Flag

// Contains reports whether f is in the set.
func (s FilterSet) Contains(f journal.Flag) bool {
	for _, v := range s {
		if v == f {
			return true
		}
	}
	return false
}

// Toggle adds f when absent and removes it otherwise.
func (s FilterSet) Toggle(f journal.Flag) FilterSet {
	out := make(FilterSet, 0, len(s)+1)
	found := false
	for _, v := range s {
		if v == f {
			found = true
			continue
		}
		out = append(out, v)
	}
	if !found {
		out = append(out, f)
	}
	return out
}

// Options drive Build.
type Options struct {
	Filters       FilterSet
	Sort          SortKey
	CutoffHourUTC int
	Now           time.Time
}

// Group is a run of pairs under one heading. Symbol sort yields a single
// group with an empty heading.
type Group struct {
	Heading string
	Pairs   []market.Pair
}

// Result is the grouped watchlist. TotalVisible counts pairs passing the
// filter, Total the whole catalog.
type Result struct {
	Groups       []Group
	TotalVisible int
	Total        int
}

// Build filters pairs by flag, sorts them and splits them into headed groups.
// flags and latest are keyed by pair id; latest holds trading dates.
func Build(pairs []market.Pair, flags map[string]journal.Flag, latest map[string]string, opts Options) Result {
	if opts.Sort == "" {
		opts.Sort = DefaultSort
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	flagOf := func(p market.Pair) journal.Flag {
		if f, ok := flags[p.ID]; ok && f != "" {
			return f
		}
		return journal.FlagNone
	}

	visible := make([]market.Pair, 0, len(pairs))
	for _, p := range pairs {
		if len(opts.Filters) == 0 || opts.Filters.Contains(flagOf(p)) {
			visible = append(visible, p)
		}
	}

	sortPairs(visible, opts.Sort, flagOf, latest)

	res := Result{TotalVisible: len(visible), Total: len(pairs)}
	switch opts.Sort {
	case ByCategory:
		res.Groups = groupBy(visible, func(p market.Pair) string { return string(p.Category) })
	case ByFlag:
		res.Groups = groupBy(visible, func(p market.Pair) string { return flagOf(p).Heading() })
	case ByDate:
		res.Groups = groupByDate(visible, latest, opts.Now, opts.CutoffHourUTC)
	default:
		if len(visible) > 0 {
			res.Groups = []Group{{Pairs: visible}}
		}
	}
	return res
}

func sortPairs(pairs []market.Pair, key SortKey, flagOf func(market.Pair) journal.Flag, latest map[string]string) {
	byName := func(a, b market.Pair) bool { return a.Name < b.Name }

	var less func(a, b market.Pair) bool
	switch key {
	case ByCategory:
		less = func(a, b market.Pair) bool {
			if a.Category != b.Category {
				return a.Category < b.Category
			}
			return byName(a, b)
		}
	case ByDate:
		less = func(a, b market.Pair) bool {
			da, db := latest[a.ID], latest[b.ID]
			switch {
			case da == db:
				return byName(a, b)
			case da == "":
				return false
			case db == "":
				return true
			}
			return da > db
		}
	case ByFlag:
		less = func(a, b market.Pair) bool {
			ra, rb := flagOf(a).Rank(), flagOf(b).Rank()
			if ra != rb {
				return ra < rb
			}
			return byName(a, b)
		}
	default:
		less = byName
	}

	sort.SliceStable(pairs, func(i, j int) bool { return less(pairs[i], pairs[j]) })
}

// groupBy starts a new group each time the heading changes, in first-seen
// order.
func groupBy(pairs []market.Pair, heading func(market.Pair) string) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, p := range pairs {
		h := heading(p)
		i, ok := index[h]
		if !ok {
			i = len(groups)
			index[h] = i
			groups = append(groups, Group{Heading: h})
		}
		groups[i].Pairs = append(groups[i].Pairs, p)
	}
	return groups
}

type dateBucket struct {
	heading string
	test    func(date string) bool
}

func groupByDate(pairs []market.Pair, latest map[string]string, now time.Time, cutoff int) []Group {
	today := tradingday.Date(now, cutoff)
	day6 := tradingday.DateDaysAgo(now, 6, cutoff)
	day30 := tradingday.DateDaysAgo(now, 30, cutoff)

	buckets := []dateBucket{{
		heading: HeadingToday,
		// Dates past today only appear with clock skew; keep them visible.
		test: func(d string) bool { return d != "" && d >= today },
	}}
	for n := 1; n <= 6; n++ {
		date := tradingday.DateDaysAgo(now, n, cutoff)
		buckets = append(buckets, dateBucket{
			heading: dayHeading(date),
			test:    func(d string) bool { return d == date },
		})
	}
	buckets = append(buckets,
		dateBucket{HeadingThisMonth, func(d string) bool { return d != "" && d >= day30 && d < day6 }},
		dateBucket{HeadingOlder, func(d string) bool { return d != "" && d < day30 }},
		dateBucket{HeadingNoAnalysis, func(d string) bool { return d == "" }},
	)

	groups := make([]Group, len(buckets))
	for i, b := range buckets {
		groups[i].Heading = b.heading
	}
	for _, p := range pairs {
		d := latest[p.ID]
		for i, b := range buckets {
			if b.test(d) {
				groups[i].Pairs = append(groups[i].Pairs, p)
				break
			}
		}
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.Pairs) > 0 {
			out = append(out, g)
		}
	}
	return out
}

func dayHeading(date string) string {
	t, err := time.Parse(tradingday.DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format(DayHeadingLayout)
}
