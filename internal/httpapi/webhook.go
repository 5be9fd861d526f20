package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"gamebattle/arena/internal/games"
	"gamebattle/arena/internal/reports"
)

// Severity colours for the report embed; red needs a written reason and
// more than three accumulated reports.
const (
	colourFresh    = 0x00FF00
	colourRepeated = 0xFFFF00
	colourSevere   = 0xFF0000
)

// webhook posts Discord-style embeds for filed reports. A nil URL makes
// every send a no-op.
type webhook struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

func newWebhook(url string, log zerolog.Logger) *webhook {
	return &webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
}

// send fires the notification in the background; delivery is best effort
// and never blocks the report path.
func (wh *webhook) send(meta games.Meta, report reports.Report, accumulated int) {
	if wh.url == "" {
		return
	}
	go func() {
		colour := colourFresh
		if accumulated > 3 {
			colour = colourRepeated
			if report.Reason != "" {
				colour = colourSevere
			}
		}

		logsAttached := "No"
		if report.Output != "" {
			logsAttached = "Yes"
		}
		body := embed{
			Title:       fmt.Sprintf("Game reported: %s", meta.Name),
			Description: report.Reason,
			Color:       colour,
			Fields: []embedField{
				{Name: "Game", Value: meta.Name, Inline: true},
				{Name: "Author", Value: meta.TeamID, Inline: true},
				{Name: "Reporter", Value: report.Author, Inline: true},
				{Name: "Short reason", Value: report.ShortReason, Inline: true},
				{Name: "Logs attached", Value: logsAttached, Inline: true},
			},
		}
		body.Footer.Text = fmt.Sprintf("Total reports: %d", accumulated)

		payload, err := json.Marshal(map[string]any{"embeds": []embed{body}})
		if err != nil {
			wh.log.Warn().Err(err).Msg("encode report webhook")
			return
		}
		resp, err := wh.client.Post(wh.url, "application/json", bytes.NewReader(payload))
		if err != nil {
			wh.log.Warn().Err(err).Msg("deliver report webhook")
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			wh.log.Warn().Int("status", resp.StatusCode).Msg("report webhook rejected")
		}
	}()
}
