// Package games holds the immutable game metadata and the team roster shared
// by the launcher, the matchmaker and the rating engine.
package games

import "fmt"

// ImagePrefix is prepended to a team id to form the sandbox image tag.
const ImagePrefix = "gamebattle-"

// Meta describes one submitted game. Values are immutable once published to
// the catalogue; updating a game replaces the entry with the same TeamID.
type Meta struct {
	Name       string `yaml:"name" json:"name"`
	TeamID     string `yaml:"team_id" json:"team_id"`
	Entrypoint string `yaml:"file" json:"file"`
}

// ImageTag derives the sandbox image tag for this game.
func (m Meta) ImageTag() string {
	return fmt.Sprintf("%s%s", ImagePrefix, m.TeamID)
}
