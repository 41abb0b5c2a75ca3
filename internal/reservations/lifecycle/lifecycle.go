// Package lifecycle is the single authority on booking status transitions:
// which edges exist, and which actor role may trigger each one.
package lifecycle

import (
	"fmt"

	apperrors "wheelshare/pkg/errors"
	"wheelshare/pkg/model"
)

// edge describes one legal transition and who may fire it.
type edge struct {
	to    string
	roles map[string]struct{}
}

var transitions = map[string]map[string]edge{
	model.StatusPending: {
		model.EventAccept: {to: model.StatusAccepted, roles: roles(model.RoleOwner)},
		model.EventReject: {to: model.StatusRejected, roles: roles(model.RoleOwner)},
		model.EventCancel: {to: model.StatusCancelled, roles: roles(model.RoleRenter)},
	},
	model.StatusAccepted: {
		model.EventCancel:   {to: model.StatusCancelled, roles: roles(model.RoleRenter, model.RoleOwner)},
		model.EventComplete: {to: model.StatusCompleted, roles: roles(model.RoleSystem)},
	},
	// rejected, cancelled and completed have no outgoing edges.
}

func roles(rs ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		m[r] = struct{}{}
	}
	return m
}

// RoleOf resolves the actor's role relative to a booking. Unknown actors get
// an empty role and fail every permission check.
func RoleOf(b *model.Booking, actorID string) string {
	switch actorID {
	case b.OwnerID:
		return model.RoleOwner
	case b.RenterID:
		return model.RoleRenter
	}
	return ""
}

// Next validates the edge (from --event--> ?) for the given role and returns
// the target status. Undefined edges and edges out of terminal states fail
// with an invalid-transition error; defined edges fired by the wrong role
// fail with a permission error. Repeat submissions land here too: a second
// accept finds the booking already accepted and gets invalid-transition.
func Next(from, event, role string) (string, error) {
	edges, ok := transitions[from]
	if !ok {
		return "", apperrors.InvalidTransition(fmt.Sprintf(
			"booking is already %s and cannot be changed", from,
		))
	}

	e, ok := edges[event]
	if !ok {
		return "", apperrors.InvalidTransition(fmt.Sprintf(
			"cannot %s a booking that is %s", event, from,
		))
	}

	if _, allowed := e.roles[role]; !allowed {
		return "", apperrors.Forbidden(fmt.Sprintf(
			"actor is not allowed to %s this booking", event,
		))
	}

	return e.to, nil
}

// EventForDecision maps the wire decision strings onto lifecycle events.
func EventForDecision(decision string) (string, error) {
	switch decision {
	case model.EventAccept, model.EventReject, model.EventCancel:
		return decision, nil
	}
	return "", apperrors.InvalidInput(fmt.Sprintf("unknown decision: %s", decision))
}
