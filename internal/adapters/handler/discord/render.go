package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
)

const barWidth = 12

// RenderMessage builds the poll message body: prompt, description, one
// line per option with count and bar, and a footer carrying the poll
// id actors need for the moderation commands.
func RenderMessage(state *domain.SessionState, now time.Time) string {
	session := state.Session
	tally := state.Tally()

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", session.Prompt)
	if session.Description != "" {
		b.WriteString(session.Description)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, opt := range session.Options {
		count := tally.Counts[opt.Index]
		fmt.Fprintf(&b, "%s — %d %s\n%s\n", opt.Label, count, voteWord(count), bar(count, tally.Total))
	}

	fmt.Fprintf(&b, "\nTotal votes: %d\n", tally.Total)
	b.WriteString(statusLine(session, now))
	fmt.Fprintf(&b, "\n`%s`", session.ID)
	return b.String()
}

func statusLine(session *domain.Session, now time.Time) string {
	switch session.Status {
	case domain.StatusClosed:
		return "This poll is closed."
	case domain.StatusExpired:
		return "This poll has ended."
	default:
		if session.ExpiresAt == nil {
			return "This poll runs until it is closed."
		}
		loc, err := time.LoadLocation(session.Settings.Timezone)
		if err != nil {
			loc = time.UTC
		}
		if !now.Before(*session.ExpiresAt) {
			return "This poll has ended."
		}
		return fmt.Sprintf("Open until %s.", session.ExpiresAt.In(loc).Format("2006-01-02 15:04 MST"))
	}
}

func bar(count, total int) string {
	if total == 0 {
		return strings.Repeat("░", barWidth)
	}
	filled := count * barWidth / total
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

func voteWord(count int) string {
	if count == 1 {
		return "vote"
	}
	return "votes"
}

// BuildComponents returns one button per option, five to a row, with
// the session id and option index packed into the custom id.
func BuildComponents(session *domain.Session) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	for _, opt := range session.Options {
		row = append(row, discordgo.Button{
			Label:    truncate(opt.Label, 80),
			Style:    discordgo.PrimaryButton,
			CustomID: fmt.Sprintf("%s:%s:%d", castPrefix, session.ID, opt.Index),
		})
		if len(row) == 5 {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: row})
	}
	return rows
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
