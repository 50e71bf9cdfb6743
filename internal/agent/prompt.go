package agent

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/kiliankoe/gptmafia/internal/game"
)

const DefaultSystemPrompt = "You are a named player in a game of Mafia (Werewolf). " +
	"Play to win for your team and try to stay alive. Speak naturally and keep each turn to one or two short paragraphs."

func roleGoal(r game.Role) string {
	switch r {
	case game.RoleMafia:
		return "You are Mafia. Eliminate the town without being discovered; never reveal your teammates."
	case game.RoleDetective:
		return "You are the Detective. Each night you may inspect one player to learn whether they are mafia or town."
	case game.RoleDoctor:
		return "You are the Doctor. Each night you may protect one player; a protected player survives the mafia kill."
	}
	return "You are a Villager. Find and vote out the mafia."
}

func channelRules(req game.TurnRequest) string {
	if req.LastWords {
		return "The town has just voted you out. Everyone will read your final statement. " +
			"Write 'LAST WORDS: <message>'; you cannot vote or act any more."
	}
	switch req.Channel {
	case game.ChannelGraveyard:
		return "You are dead. Only other dead players read the graveyard; the living cannot hear you " +
			"and you can no longer vote or act."
	case game.ChannelMafia:
		return "You are on the private mafia channel. Write 'KILL: <exact name>' to choose tonight's victim. " +
			"The kill happens as soon as every living mafia member names the same target."
	case game.ChannelPrivate:
		if req.Player.Role == game.RoleDoctor {
			return "Only you can read this. Write 'PROTECT: <exact name>' to protect one player tonight."
		}
		return "Only you can read this. Write 'INSPECT: <exact name>' to learn one player's alignment at dawn."
	}
	return "Everyone reads the public channel. Write 'VOTE: <exact name>' to vote, or 'VOTE: none' to abstain. " +
		"Only your latest vote counts, and a majority of the living ends the day at once."
}

// SystemPrompt is the per-turn system message: persona, role and the
// command grammar for the channel being spoken on.
func SystemPrompt(base string, req game.TurnRequest, model string) string {
	if base == "" {
		base = DefaultSystemPrompt
	}
	parts := []string{
		base,
		fmt.Sprintf("Your codename is %q and your underlying model is %q.", req.Player.Name, model),
		roleGoal(req.Player.Role),
		channelRules(req),
		"Do not invent earlier days, deaths or events. Naming a player in conversation is not an action; only the command counts.",
	}
	if req.Phase == game.PhaseNight && req.Night == 1 {
		parts = append(parts, "This is the first night. Nobody has died yet.")
	}
	return strings.Join(parts, " ")
}

// TurnPrompt renders what the player can see right now. The first line is a
// short header.
func TurnPrompt(req game.TurnRequest) string {
	var sb strings.Builder
	round := req.Night
	if req.Phase == game.PhaseDay {
		round = req.Day
	}
	fmt.Fprintf(&sb, "%s %d, %s channel, %s\n", req.Phase, round, req.Channel, req.Player.Name)
	fmt.Fprintf(&sb, "Your role: %s\n", req.Player.Role)
	fmt.Fprintf(&sb, "Alive: %s\n", strings.Join(req.Alive, ", "))
	if len(req.Dead) > 0 {
		dead := make([]string, 0, len(req.Dead))
		for _, p := range req.Dead {
			dead = append(dead, fmt.Sprintf("%s (%s)", p.Name, p.Role))
		}
		fmt.Fprintf(&sb, "Dead: %s\n", strings.Join(dead, ", "))
	}
	if len(req.Teammates) > 0 {
		fmt.Fprintf(&sb, "Mafia teammates: %s\n", strings.Join(req.Teammates, ", "))
	}
	if len(req.Known) > 0 {
		var known []string
		for _, name := range slices.Sorted(maps.Keys(req.Known)) {
			known = append(known, fmt.Sprintf("%s is %s", name, req.Known[name]))
		}
		fmt.Fprintf(&sb, "Your inspections: %s\n", strings.Join(known, "; "))
	}
	if len(req.Votes) > 0 {
		var votes []string
		for _, voter := range slices.Sorted(maps.Keys(req.Votes)) {
			target := req.Votes[voter]
			if target == "" {
				target = "none"
			}
			votes = append(votes, voter+" -> "+target)
		}
		fmt.Fprintf(&sb, "Votes so far: %s\n", strings.Join(votes, ", "))
	}
	if req.HumanLast != "" {
		fmt.Fprintf(&sb, "%s (human) last said: %q\n", req.Human, req.HumanLast)
	}
	if len(req.Recap) > 0 {
		sb.WriteString("Since your last turn:\n")
		for _, line := range req.Recap {
			sb.WriteString("  " + line + "\n")
		}
	} else {
		sb.WriteString("Nothing new since your last turn.\n")
	}
	sb.WriteString("Respond now.")
	return sb.String()
}
