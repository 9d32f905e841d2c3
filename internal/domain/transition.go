package domain

import "fmt"

type edge struct {
	next  State
	roles Role
}

// transitionTable maps a state to its permitted actions. States absent from the
// table, or present with no actions, are terminal.
type transitionTable map[State]map[Action]edge

var escrowTransitions = transitionTable{
	StatePending: {
		ActionDispute: {next: StateDisputed, roles: RoleBuyer},
		ActionRelease: {next: StateReleased, roles: RoleBuyer},
		ActionRefund:  {next: StateRefunded, roles: RoleBuyer},
	},
	StateDisputed: {
		ActionRelease: {next: StateReleased, roles: RoleArbitrator},
		ActionRefund:  {next: StateRefunded, roles: RoleBuyer},
	},
	StateReleased: {},
	StateRefunded: {},
}

var orderTransitions = transitionTable{
	StatePending: {
		ActionShip:    {next: StateShipped, roles: RoleSeller},
		ActionDispute: {next: StateDisputed, roles: RoleBuyer},
		ActionRefund:  {next: StateRefunded, roles: RoleBuyer},
	},
	StateShipped: {
		ActionDeliver: {next: StateDelivered, roles: RoleBuyer},
		ActionDispute: {next: StateDisputed, roles: RoleBuyer},
	},
	StateDelivered: {
		ActionRelease: {next: StateReleased, roles: RoleBuyer},
	},
	StateDisputed: {
		ActionRelease: {next: StateReleased, roles: RoleArbitrator},
		ActionRefund:  {next: StateRefunded, roles: RoleBuyer},
	},
	StateReleased: {},
	StateRefunded: {},
}

var auctionTransitions = transitionTable{
	StateActive: {
		ActionEnd:    {next: StateEnded, roles: RoleSystem},
		ActionBuyNow: {next: StateEnded, roles: RoleBidder},
		ActionCancel: {next: StateCancelled, roles: RoleSeller},
	},
	StateEnded: {
		ActionSettle: {next: StateSettled, roles: RoleSystem},
	},
	StateSettled:   {},
	StateCancelled: {},
}

// actionOrder fixes lookup order where two actions share a target state.
var actionOrder = []Action{
	ActionShip, ActionDeliver, ActionDispute, ActionRelease, ActionRefund,
	ActionEnd, ActionBuyNow, ActionCancel, ActionSettle,
}

func tableFor(kind RecordKind) (transitionTable, error) {
	switch kind {
	case KindEscrow:
		return escrowTransitions, nil
	case KindOrder:
		return orderTransitions, nil
	case KindAuction:
		return auctionTransitions, nil
	default:
		return nil, fmt.Errorf("%w: unknown record kind %q", ErrInvalidInput, kind)
	}
}

// Validate returns the state reached by applying action from current on behalf
// of a caller holding role. It performs no storage access and no authorization
// check beyond matching role against the edge.
func Validate(kind RecordKind, current State, action Action, role Role) (State, error) {
	table, err := tableFor(kind)
	if err != nil {
		return "", err
	}
	actions, ok := table[current]
	if !ok {
		return "", fmt.Errorf("%w: unknown %s state %s", ErrInvalidTransition, kind, current)
	}
	e, ok := actions[action]
	if !ok {
		return "", fmt.Errorf("%w: %s cannot %s from %s", ErrInvalidTransition, kind, action, current)
	}
	if e.next == current {
		return "", fmt.Errorf("%w: %s already %s", ErrInvalidTransition, kind, current)
	}
	if !role.Has(e.roles) {
		return "", fmt.Errorf("%w: caller may not %s %s from %s", ErrUnauthorized, action, kind, current)
	}
	return e.next, nil
}

// TargetAction resolves the action that moves a record from current to target.
// Requests for the current state are rejected so duplicate submissions surface.
func TargetAction(kind RecordKind, current, target State) (Action, error) {
	if current == target {
		return "", fmt.Errorf("%w: %s already %s", ErrInvalidTransition, kind, current)
	}
	table, err := tableFor(kind)
	if err != nil {
		return "", err
	}
	actions := table[current]
	for _, action := range actionOrder {
		if e, ok := actions[action]; ok && e.next == target {
			return action, nil
		}
	}
	return "", fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, kind, current, target)
}

// IsTerminal reports whether no action leaves state.
func IsTerminal(kind RecordKind, state State) bool {
	table, err := tableFor(kind)
	if err != nil {
		return false
	}
	actions, ok := table[state]
	return ok && len(actions) == 0
}

// States lists every state known for kind.
func States(kind RecordKind) []State {
	table, err := tableFor(kind)
	if err != nil {
		return nil
	}
	states := make([]State, 0, len(table))
	for s := range table {
		states = append(states, s)
	}
	return states
}
