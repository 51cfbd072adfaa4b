package persona

import "math/rand"

// Persona is the configuration record for one thinker identity. All personas
// are served by the same Adapter; there is no per-persona code.
type Persona struct {
	Name      string
	Bio       string
	Positions string
	Style     string
}

// Turn is one prior message in the conversation, as seen by the adapter.
type Turn struct {
	SenderName string
	Content    string
	FromUser   bool
}

// Request carries everything needed to generate one persona turn.
type Request struct {
	Persona      *Persona
	Participants []string // display names of all participants, self included
	History      []Turn   // oldest first
	Topic        string
	Locale       string // BCP 47 tag, e.g. "en", "de"; empty means "en"
	Knowledge    string // optional background research context, may be empty
	StyleHint    string // directive from ChooseStyle, may be empty
}

// Result is a completed generation with its accounted cost.
type Result struct {
	Content string
	Cost    float64
}

// ChooseStyle picks a per-turn response directive. Thinkers directly
// addressed get substantive replies; a thinker that just spoke tends toward
// brief follow-ups. The rng is injected so tests can pin the distribution.
func ChooseStyle(p *Persona, history []Turn, addressed bool, rng *rand.Rand) string {
	if addressed {
		if rng.Float64() < 0.7 {
			return "You were addressed directly. Give a substantive reply, several sentences, engaging the point head-on."
		}
		return "You were addressed directly. Reply in your own manner, two to four sentences."
	}
	if n := len(history); n > 0 && !history[n-1].FromUser && history[n-1].SenderName == p.Name {
		if rng.Float64() < 0.4 {
			return "You spoke last. Add only a brief aside, one short sentence, or concede the floor with a pointed question."
		}
	}
	if rng.Float64() < 0.25 {
		return "Keep it short: one or two sentences."
	}
	return "Reply conversationally, two to four sentences."
}
