package api

import (
	"time"

	"github.com/rustyeddy/tradelog/autosave"
	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/market"
	"github.com/rustyeddy/tradelog/tradingday"
	"github.com/rustyeddy/tradelog/watchlist"
)

type pairJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Flag       string `json:"flag"`
	LatestDate string `json:"latest_date,omitempty"`
}

type groupJSON struct {
	Heading string     `json:"heading,omitempty"`
	Pairs   []pairJSON `json:"pairs"`
}

type boardJSON struct {
	Groups       []groupJSON `json:"groups"`
	TotalVisible int         `json:"total_visible"`
	Total        int         `json:"total"`
}

func toBoard(res watchlist.Result, flags map[string]journal.Flag, latest map[string]string) boardJSON {
	out := boardJSON{
		Groups:       make([]groupJSON, 0, len(res.Groups)),
		TotalVisible: res.TotalVisible,
		Total:        res.Total,
	}
	for _, g := range res.Groups {
		gj := groupJSON{Heading: g.Heading, Pairs: make([]pairJSON, 0, len(g.Pairs))}
		for _, p := range g.Pairs {
			flag := flags[p.ID]
			if flag == "" {
				flag = journal.FlagNone
			}
			gj.Pairs = append(gj.Pairs, pairJSON{
				ID:         p.ID,
				Name:       p.Name,
				Category:   string(p.Category),
				Flag:       string(flag),
				LatestDate: latest[p.ID],
			})
		}
		out.Groups = append(out.Groups, gj)
	}
	return out
}

// notesJSON flattens notes into attribute name -> value.
func notesJSON(n journal.Notes) map[string]string {
	out := make(map[string]string, 12)
	for _, f := range journal.Fields() {
		out[f.String()] = n.Get(f)
	}
	return out
}

type draftJSON struct {
	PairID string            `json:"pair_id"`
	Pair   string            `json:"pair"`
	Bucket string            `json:"bucket"`
	Status string            `json:"status"`
	State  string            `json:"state"`
	Notes  map[string]string `json:"notes"`
}

func toDraft(e *autosave.Engine, p market.Pair) draftJSON {
	return draftJSON{
		PairID: p.ID,
		Pair:   p.Name,
		Bucket: e.CurrentKey(),
		Status: e.Status(p.ID).String(),
		State:  e.State(p.ID).String(),
		Notes:  notesJSON(e.Draft(p.ID)),
	}
}

type analysisJSON struct {
	ID          string            `json:"id"`
	PairID      string            `json:"pair_id"`
	Pair        string            `json:"pair"`
	Timestamp   time.Time         `json:"timestamp"`
	TradingDate string            `json:"trading_date"`
	Summary     string            `json:"summary"`
	Notes       map[string]string `json:"notes"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

const summaryWidth = 40

func toAnalysis(a journal.Analysis, cutoff int) analysisJSON {
	return analysisJSON{
		ID:          a.ID,
		PairID:      a.PairID,
		Pair:        market.Name(a.PairID),
		Timestamp:   a.Timestamp,
		TradingDate: tradingday.Date(a.Timestamp, cutoff),
		Summary:     journal.Summary(a.Notes, summaryWidth),
		Notes:       notesJSON(a.Notes),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toAnalyses(as []journal.Analysis, cutoff int) []analysisJSON {
	out := make([]analysisJSON, 0, len(as))
	for _, a := range as {
		out = append(out, toAnalysis(a, cutoff))
	}
	return out
}

type settingJSON struct {
	PairID string `json:"pair_id"`
	Flag   string `json:"flag"`
}

func toSettings(ss []journal.PairSetting) []settingJSON {
	out := make([]settingJSON, 0, len(ss))
	for _, s := range ss {
		out = append(out, settingJSON{PairID: s.PairID, Flag: string(s.Flag)})
	}
	return out
}
