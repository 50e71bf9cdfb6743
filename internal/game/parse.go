package game

import (
	"fmt"
	"regexp"
	"strings"
)

// Replies are free text. Only the literal command grammar for the action
// the speaker may take right now counts; naming a player in conversation,
// or using another role's command word, never does.
var commands = map[ActionKind]*regexp.Regexp{
	ActionVote:    regexp.MustCompile(`(?i)\b(?:vote|lynch)\b\s*:?\s*([^\n\r,;!?]+)`),
	ActionKill:    regexp.MustCompile(`(?i)\bkill\b\s*:?\s*([^\n\r,;!?]+)`),
	ActionProtect: regexp.MustCompile(`(?i)\b(?:protect|save)\b\s*:?\s*([^\n\r,;!?]+)`),
	ActionInspect: regexp.MustCompile(`(?i)\b(?:inspect|investigate)\b\s*:?\s*([^\n\r,;!?]+)`),
}

var lastWordsRe = regexp.MustCompile(`(?is)\blast\s*words\s*:\s*(.+)$`)

var abstainWords = []string{"none", "abstain", "nobody", "no one", "no lynch", "skip"}

var markdown = strings.NewReplacer("**", " ", "*", " ", "`", " ")

// ParseReply turns a reply by p during phase into a Turn. Explicit action
// fields win over the text grammar and are validated later as given.
func ParseReply(r Reply, p Player, phase Phase, players []Player) Turn {
	ch, _ := channelFor(p, phase)
	t := Turn{Channel: ch, Speech: strings.TrimSpace(r.Text)}
	if r.Action != "" {
		t.Action = ActionKind(strings.ToUpper(strings.TrimSpace(string(r.Action))))
		target := strings.TrimSpace(r.Target)
		if t.Action == ActionVote && isAbstain(strings.ToLower(target)) {
			t.Abstain = true
			return t
		}
		t.Target = target
		if named, ok := find(players, target); ok {
			t.Target = named.Name
		}
		return t
	}
	if kind := allowedAction(p, phase); kind != "" {
		t.Action, t.Target, t.Abstain = parseCommand(t.Speech, kind, players)
	}
	return t
}

// parseCommand finds the earliest kind command in text that names a player,
// or abstains for a vote.
func parseCommand(text string, kind ActionKind, players []Player) (ActionKind, string, bool) {
	re, ok := commands[kind]
	if !ok {
		return "", "", false
	}
	for _, m := range re.FindAllStringSubmatch(markdown.Replace(text), -1) {
		seg := segment(m[1])
		if kind == ActionVote && isAbstain(seg) {
			return kind, "", true
		}
		if name, ok := resolveName(seg, players); ok {
			return kind, name, false
		}
	}
	return "", "", false
}

// parseLastWords returns what follows "LAST WORDS:", or the whole text when
// the marker is missing.
func parseLastWords(text string) string {
	if m := lastWordsRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

func segment(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(s, ". "); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(s, " .'\"<>[]()@")
}

func isAbstain(seg string) bool {
	for _, w := range abstainWords {
		if seg == w || strings.HasPrefix(seg, w+" ") {
			return true
		}
	}
	return false
}

// resolveName matches a command argument to a player name. An exact match
// beats a name followed by more words, which beats a prefix of a name.
// Equal-scoring candidates make the argument ambiguous.
func resolveName(seg string, players []Player) (string, bool) {
	if seg == "" {
		return "", false
	}
	best, bestScore, ambiguous := "", 0, false
	for _, p := range players {
		n := strings.ToLower(p.Name)
		score := 0
		switch {
		case seg == n:
			score = 3
		case strings.HasPrefix(seg, n+" "):
			score = 2
		case len(seg) >= 2 && strings.HasPrefix(n, seg):
			score = 1
		}
		switch {
		case score == 0:
		case score > bestScore:
			best, bestScore, ambiguous = p.Name, score, false
		case score == bestScore && score == 2 && len(n) > len(best):
			best, ambiguous = p.Name, false
		case score == bestScore && !(score == 2 && len(n) < len(best)):
			ambiguous = true
		}
	}
	if bestScore == 0 || ambiguous {
		return "", false
	}
	return best, true
}

// channelFor is the channel a player speaks on in the given phase. The dead
// only ever speak in the graveyard.
func channelFor(p Player, phase Phase) (Channel, bool) {
	if !p.Alive {
		return ChannelGraveyard, true
	}
	if phase == PhaseDay {
		return ChannelPublic, true
	}
	switch p.Role {
	case RoleMafia:
		return ChannelMafia, true
	case RoleDoctor, RoleDetective:
		return ChannelPrivate, true
	}
	return "", false
}

// allowedAction is the one action p may take during phase, if any.
func allowedAction(p Player, phase Phase) ActionKind {
	switch {
	case !p.Alive:
		return ""
	case phase == PhaseDay:
		return ActionVote
	}
	switch p.Role {
	case RoleMafia:
		return ActionKill
	case RoleDoctor:
		return ActionProtect
	case RoleDetective:
		return ActionInspect
	}
	return ""
}

// validateTurn checks that the player's role may take the turn's action in
// this phase.
func validateTurn(p Player, phase Phase, t Turn, players []Player) error {
	if _, ok := channelFor(p, phase); !ok {
		return fmt.Errorf("%s sleeps at night: %w", p.Role, ErrInvalidAction)
	}
	if t.Action == "" {
		return nil
	}
	if allowedAction(p, phase) != t.Action {
		return fmt.Errorf("%s cannot %s during %s: %w", p.Role, t.Action, phase, ErrInvalidAction)
	}
	if t.Action == ActionVote && t.Abstain {
		return nil
	}
	target, ok := find(players, t.Target)
	if !ok {
		return fmt.Errorf("unknown target %q: %w", t.Target, ErrInvalidAction)
	}
	if !target.Alive {
		return fmt.Errorf("target %s is dead: %w", target.Name, ErrInvalidAction)
	}
	switch {
	case t.Action == ActionKill && target.Role == RoleMafia:
		return fmt.Errorf("mafia cannot kill mafia: %w", ErrInvalidAction)
	case t.Action == ActionInspect && target.Name == p.Name:
		return fmt.Errorf("detective cannot inspect self: %w", ErrInvalidAction)
	}
	return nil
}
