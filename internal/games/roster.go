package games

import (
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Team groups the voters that share one submitted game.
type Team struct {
	ID           string   `yaml:"id"`
	DisplayName  string   `yaml:"name"`
	MemberEmails []string `yaml:"members"`
}

// Roster maps voters to teams. Emails are normalised at load time; each
// email belongs to at most one team.
type Roster struct {
	mu      sync.RWMutex
	teams   map[string]*Team
	byEmail map[string]*Team
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{
		teams:   make(map[string]*Team),
		byEmail: make(map[string]*Team),
	}
}

// NormalizeEmail canonicalises an email for roster and vote bookkeeping.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LoadFile replaces the roster contents with the teams listed in a yaml file.
func (r *Roster) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read teams file")
	}
	var teams []Team
	if err := yaml.Unmarshal(raw, &teams); err != nil {
		return errors.Wrap(err, "parse teams file")
	}
	return r.Replace(teams)
}

// Replace swaps in a new set of teams, folding duplicate emails. The first
// team listing an email wins.
func (r *Roster) Replace(teams []Team) error {
	byID := make(map[string]*Team, len(teams))
	byEmail := make(map[string]*Team)
	for i := range teams {
		team := teams[i]
		if strings.TrimSpace(team.ID) == "" {
			return errors.New("team id must be provided")
		}
		if _, ok := byID[team.ID]; ok {
			return errors.Errorf("duplicate team id %q", team.ID)
		}
		// 1.- Normalise and fold member emails before publishing the team.
		members := make([]string, 0, len(team.MemberEmails))
		for _, email := range team.MemberEmails {
			email = NormalizeEmail(email)
			if email == "" {
				continue
			}
			if _, taken := byEmail[email]; taken {
				continue
			}
			members = append(members, email)
		}
		team.MemberEmails = members
		byID[team.ID] = &team
		for _, email := range members {
			byEmail[email] = &team
		}
	}

	r.mu.Lock()
	r.teams = byID
	r.byEmail = byEmail
	r.mu.Unlock()
	return nil
}

// TeamOf returns the team an email belongs to, or nil.
func (r *Roster) TeamOf(email string) *Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byEmail[NormalizeEmail(email)]
}

// Team returns the team with the given id, or nil.
func (r *Roster) Team(id string) *Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.teams[id]
}

// Owns reports whether the email belongs to the team with the given id.
func (r *Roster) Owns(email, teamID string) bool {
	team := r.TeamOf(email)
	return team != nil && team.ID == teamID
}
