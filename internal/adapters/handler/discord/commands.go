package discord

import "github.com/bwmarrin/discordgo"

func commandDefinitions() []*discordgo.ApplicationCommand {
	pollID := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "poll-id",
		Description: "Poll id shown in the poll message footer",
		Required:    true,
	}
	duration := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "duration",
		Description: "How long the poll runs, e.g. 90m or 24h (0 for no expiry)",
	}
	canRevote := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionBoolean,
		Name:        "can-revote",
		Description: "Whether voters may change their answer",
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "create-poll",
			Description: "Creates a new poll in this channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "prompt",
					Description: "The question to vote on",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "options",
					Description: "Answer options, separated by semicolons",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "description",
					Description: "Additional context shown under the question",
				},
				duration,
				canRevote,
			},
		},
		{
			Name:        "edit-poll",
			Description: "Edits a running poll you created",
			Options: []*discordgo.ApplicationCommandOption{
				pollID,
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "prompt",
					Description: "New question",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "description",
					Description: "New description",
				},
				duration,
				canRevote,
			},
		},
		{
			Name:        "close-poll",
			Description: "Closes a poll and freezes its result",
			Options:     []*discordgo.ApplicationCommandOption{pollID},
		},
		{
			Name:        "delete-poll",
			Description: "Deletes a poll and all its votes",
			Options:     []*discordgo.ApplicationCommandOption{pollID},
		},
		{
			Name:        "poll-results",
			Description: "Shows the current result of a poll",
			Options:     []*discordgo.ApplicationCommandOption{pollID},
		},
		{
			Name:        "poll-settings",
			Description: "Shows or changes the default poll settings of this channel",
			Options:     []*discordgo.ApplicationCommandOption{duration, canRevote, {
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "timezone",
				Description: "IANA timezone used when rendering times, e.g. Europe/Berlin",
			}},
		},
		{
			Name:        "poll-stats",
			Description: "Shows bot statistics",
		},
	}
}

// options is a name-indexed view over interaction options.
type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func commandOptions(data discordgo.ApplicationCommandInteractionData) options {
	out := make(options, len(data.Options))
	for _, opt := range data.Options {
		out[opt.Name] = opt
	}
	return out
}

func (o options) str(name string) string {
	if opt, ok := o[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func (o options) boolVal(name string) (bool, bool) {
	if opt, ok := o[name]; ok {
		return opt.BoolValue(), true
	}
	return false, false
}
