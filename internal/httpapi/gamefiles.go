package httpapi

import (
	"encoding/base64"
	"net/http"

	"github.com/gorilla/mux"

	"gamebattle/arena/internal/fault"
	"gamebattle/arena/internal/games"
)

// fileRecord is the wire shape of one submitted file.
type fileRecord struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// submissionTeam resolves the caller's team, enforcing the competition
// freeze for non-admins.
func (h *HandlerSet) submissionTeam(r *http.Request) (string, error) {
	identity, err := h.identify(r)
	if err != nil {
		return "", err
	}
	if h.enableCompetition && !identity.Admin {
		return "", fault.ErrCompetitionDisabled
	}
	team := h.roster.TeamOf(identity.Email)
	if team == nil {
		return "", fault.Gamebattlef("you are not in a team")
	}
	return team.ID, nil
}

func (h *HandlerSet) listGameFiles(w http.ResponseWriter, r *http.Request) {
	teamID, err := h.submissionTeam(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeFileListing(w, teamID)
}

func (h *HandlerSet) adminListGameFiles(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		h.fail(w, err)
		return
	}
	h.writeFileListing(w, mux.Vars(r)["team"])
}

func (h *HandlerSet) writeFileListing(w http.ResponseWriter, teamID string) {
	files, err := h.launcher.ListFiles(teamID)
	if err != nil {
		h.fail(w, err)
		return
	}
	records := make([]fileRecord, 0, len(files))
	for path, content := range files {
		records = append(records, fileRecord{
			Path:    path,
			Content: base64.StdEncoding.EncodeToString(content),
		})
	}
	writeJSON(w, records)
}

func (h *HandlerSet) addGameFile(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var body struct {
		Filename string  `json:"filename"`
		Content  string  `json:"content"`
		TeamID   *string `json:"team_id"`
	}
	if err := readJSON(r, &body); err != nil {
		h.fail(w, err)
		return
	}
	if body.TeamID != nil && !identity.Admin {
		h.fail(w, fault.ErrForbidden)
		return
	}

	var teamID string
	if body.TeamID != nil {
		teamID = *body.TeamID
	} else {
		if h.enableCompetition && !identity.Admin {
			h.fail(w, fault.ErrCompetitionDisabled)
			return
		}
		team := h.roster.TeamOf(identity.Email)
		if team == nil {
			h.fail(w, fault.Gamebattlef("you are not in a team"))
			return
		}
		teamID = team.ID
	}

	content, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		h.fail(w, fault.Invalidf("content is not base64"))
		return
	}
	if err := h.launcher.AddFile(teamID, body.Filename, content); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HandlerSet) removeGameFile(w http.ResponseWriter, r *http.Request) {
	teamID, err := h.submissionTeam(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.launcher.RemoveFile(teamID, mux.Vars(r)["filename"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HandlerSet) adminRemoveGameFile(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		h.fail(w, err)
		return
	}
	vars := mux.Vars(r)
	if err := h.launcher.RemoveFile(vars["team"], vars["filename"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HandlerSet) gameMetadata(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if h.enableCompetition && !identity.Admin {
		h.fail(w, fault.ErrCompetitionDisabled)
		return
	}
	team := h.roster.TeamOf(identity.Email)
	if team == nil {
		writeJSON(w, nil)
		return
	}
	meta, ok := h.launcher.Get(team.ID)
	if !ok {
		writeJSON(w, nil)
		return
	}
	writeJSON(w, meta)
}

func (h *HandlerSet) adminGameMetadata(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		h.fail(w, err)
		return
	}
	meta, ok := h.launcher.Get(mux.Vars(r)["team"])
	if !ok {
		writeJSON(w, nil)
		return
	}
	writeJSON(w, meta)
}

func (h *HandlerSet) buildGame(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var body struct {
		Name   string  `json:"name"`
		File   string  `json:"file"`
		GameID *string `json:"game_id"`
	}
	if err := readJSON(r, &body); err != nil {
		h.fail(w, err)
		return
	}
	if body.GameID != nil && !identity.Admin {
		h.fail(w, fault.ErrForbidden)
		return
	}
	if h.enableCompetition && !identity.Admin {
		h.fail(w, fault.ErrCompetitionDisabled)
		return
	}

	var teamID string
	if body.GameID != nil {
		existing, ok := h.launcher.Get(*body.GameID)
		if !ok {
			h.fail(w, fault.NotFoundf("game %q", *body.GameID))
			return
		}
		teamID = existing.TeamID
	} else {
		team := h.roster.TeamOf(identity.Email)
		if team == nil {
			h.fail(w, fault.Gamebattlef("you are not in a team"))
			return
		}
		teamID = team.ID
	}

	meta := games.Meta{Name: body.Name, TeamID: teamID, Entrypoint: body.File}
	if err := h.launcher.BuildGame(r.Context(), meta); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
