package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"gamebattle/arena/internal/fault"
	"gamebattle/arena/internal/rating"
)

const requiredAccumulation = 5

// statsRecord is a voter's competition standing.
type statsRecord struct {
	Permitted            bool     `json:"permitted"`
	Started              bool     `json:"started"`
	Elo                  *float64 `json:"elo"`
	MaxElo               float64  `json:"max_elo"`
	Place                *int     `json:"place"`
	Places               int      `json:"places"`
	Accumulation         float64  `json:"accumulation"`
	RequiredAccumulation float64  `json:"required_accumulation"`
	Reports              int      `json:"reports"`
	TimesPlayed          int      `json:"times_played"`
}

func (h *HandlerSet) leaderboard(w http.ResponseWriter, r *http.Request) {
	top, err := h.engine.Top(r.Context(), h.launcher)
	if err != nil {
		h.fail(w, err)
		return
	}
	if top == nil {
		top = []rating.Rating{}
	}
	writeJSON(w, top)
}

func placeOn(top []rating.Rating, score float64) *int {
	for i, row := range top {
		if score >= row.Score {
			place := i + 1
			return &place
		}
	}
	return nil
}

func maxElo(top []rating.Rating) float64 {
	if len(top) == 0 {
		return 1
	}
	return top[0].Score
}

func placesOn(top []rating.Rating) int {
	if len(top) == 0 {
		return 1
	}
	return len(top)
}

func (h *HandlerSet) stats(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	top, err := h.engine.Top(r.Context(), h.launcher)
	if err != nil {
		h.fail(w, err)
		return
	}

	team := h.roster.TeamOf(identity.Email)
	if team == nil {
		writeJSON(w, statsRecord{
			Permitted:            false,
			Started:              h.enableCompetition,
			MaxElo:               maxElo(top),
			Places:               placesOn(top),
			RequiredAccumulation: requiredAccumulation,
		})
		return
	}

	score, played := h.engine.Score(team.ID)
	filed, err := h.engine.FetchReports(r.Context(), team.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	accumulation, err := h.preferences.AccumulationBy(r.Context(), identity.Email)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, statsRecord{
		Permitted:            true,
		Started:              h.enableCompetition,
		Elo:                  &score,
		MaxElo:               maxElo(top),
		Place:                placeOn(top, score),
		Places:               placesOn(top),
		Accumulation:         accumulation,
		RequiredAccumulation: requiredAccumulation,
		Reports:              len(filed),
		TimesPlayed:          played,
	})
}

// memberStats is one team member's standing on the admin surface.
type memberStats struct {
	Email string      `json:"email"`
	Stats statsRecord `json:"stats"`
}

func (h *HandlerSet) teamStats(r *http.Request, teamID string) ([]memberStats, error) {
	team := h.roster.Team(teamID)
	if team == nil {
		return nil, fault.NotFoundf("team %q", teamID)
	}
	top, err := h.engine.Top(r.Context(), h.launcher)
	if err != nil {
		return nil, err
	}

	score, played, rated := h.engine.ScoreIfExists(teamID)
	filed, err := h.engine.FetchReports(r.Context(), teamID)
	if err != nil {
		return nil, err
	}

	var elo *float64
	place := placeOn(top, score)
	if rated {
		elo = &score
	} else {
		last := placesOn(top)
		place = &last
	}

	out := make([]memberStats, 0, len(team.MemberEmails))
	for _, email := range team.MemberEmails {
		accumulation, err := h.preferences.AccumulationBy(r.Context(), email)
		if err != nil {
			return nil, err
		}
		out = append(out, memberStats{
			Email: email,
			Stats: statsRecord{
				Permitted:            true,
				Started:              h.enableCompetition,
				Elo:                  elo,
				MaxElo:               maxElo(top),
				Place:                place,
				Places:               placesOn(top),
				Accumulation:         accumulation,
				RequiredAccumulation: requiredAccumulation,
				Reports:              len(filed),
				TimesPlayed:          played,
			},
		})
	}
	return out, nil
}

func (h *HandlerSet) adminStats(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		h.fail(w, err)
		return
	}
	records, err := h.teamStats(r, mux.Vars(r)["team"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, records)
}

// allStatsRow pairs a member's standing with their game for /allstats.
type allStatsRow struct {
	Email    string      `json:"email"`
	TeamID   string      `json:"team_id"`
	GameName string      `json:"game_name"`
	Stats    statsRecord `json:"stats"`
}

func (h *HandlerSet) allStats(r *http.Request) ([]allStatsRow, error) {
	var rows []allStatsRow
	for _, meta := range h.launcher.Games() {
		members, err := h.teamStats(r, meta.TeamID)
		if err != nil {
			continue
		}
		for _, member := range members {
			rows = append(rows, allStatsRow{
				Email:    member.Email,
				TeamID:   meta.TeamID,
				GameName: meta.Name,
				Stats:    member.Stats,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Email < rows[j].Email })
	return rows, nil
}

func (h *HandlerSet) adminAllStats(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		h.fail(w, err)
		return
	}
	rows, err := h.allStats(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, rows)
}

func (h *HandlerSet) adminAllStatsCSV(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		h.fail(w, err)
		return
	}
	rows, err := h.allStats(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"Email", "Team ID", "Game name", "Elo", "Place",
		"Times game was played", "Comparisons made", "Reports",
	})
	for _, row := range rows {
		elo, place := "", ""
		if row.Stats.Elo != nil {
			elo = fmt.Sprintf("%.1f", *row.Stats.Elo)
		}
		if row.Stats.Place != nil {
			place = fmt.Sprintf("%d", *row.Stats.Place)
		}
		_ = writer.Write([]string{
			row.Email,
			row.TeamID,
			row.GameName,
			elo,
			place,
			fmt.Sprintf("%d", row.Stats.TimesPlayed),
			fmt.Sprintf("%g", row.Stats.Accumulation),
			fmt.Sprintf("%d", row.Stats.Reports),
		})
	}
	writer.Flush()
}
