package territory

// Action is one strategic choice available to an autonomous faction.
type Action int

const (
	ActionExpand Action = iota
	ActionDefend
	ActionAttack
	ActionFortify
	ActionPatrol
	ActionRetreat
	ActionNegotiate
)

var actionNames = [...]string{
	ActionExpand:    "EXPAND",
	ActionDefend:    "DEFEND",
	ActionAttack:    "ATTACK",
	ActionFortify:   "FORTIFY",
	ActionPatrol:    "PATROL",
	ActionRetreat:   "RETREAT",
	ActionNegotiate: "NEGOTIATE",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "UNKNOWN"
	}
	return actionNames[a]
}

// Actions lists every strategic action in a stable order.
func Actions() []Action {
	out := make([]Action, len(actionNames))
	for i := range actionNames {
		out[i] = Action(i)
	}
	return out
}

// Weight maps a personality profile to a scoring weight for an action.
// Adding a faction is roster data; this table is the only dispatch point.
func (p Personality) Weight(a Action) float64 {
	switch a {
	case ActionExpand:
		return 0.2 + p.Expansion
	case ActionDefend:
		return 0.4 + (1-p.Aggression)*0.4
	case ActionAttack:
		return 0.1 + p.Aggression
	case ActionFortify:
		return 0.3 + (1-p.Expansion)*0.3
	case ActionPatrol:
		return 0.25
	case ActionRetreat:
		return 0.1 + (1-p.Aggression)*0.2
	case ActionNegotiate:
		return 0.1 + p.Negotiation
	default:
		return 0
	}
}
