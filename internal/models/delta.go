// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package models

// DeltaAction is the direction of a participant membership change.
type DeltaAction string

const (
	ActionJoin  DeltaAction = "join"
	ActionLeave DeltaAction = "leave"
)

// Valid reports whether the action is one of the recognized values.
func (a DeltaAction) Valid() bool {
	return a == ActionJoin || a == ActionLeave
}

// Inverse returns the opposite action, used to roll back an optimistic
// mutation whose confirming call failed.
func (a DeltaAction) Inverse() DeltaAction {
	if a == ActionJoin {
		return ActionLeave
	}
	return ActionJoin
}

// ParticipantDelta is an idempotent membership instruction: joining twice
// does not duplicate membership and leaving as a non-member is a no-op.
type ParticipantDelta struct {
	EventID string
	UserID  string
	Action  DeltaAction
}

// Inverse returns the delta that undoes this one.
func (d ParticipantDelta) Inverse() ParticipantDelta {
	return ParticipantDelta{EventID: d.EventID, UserID: d.UserID, Action: d.Action.Inverse()}
}

// ParticipantFrame is the wire shape of a push-channel participant message.
type ParticipantFrame struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
	Action  string `json:"action"`
}

// FrameTypeParticipant identifies participant frames on the push channel.
const FrameTypeParticipant = "participant"

// Delta converts a well-formed frame into a ParticipantDelta.
// The second return is false for frames of the wrong type, with missing
// identifiers, or with an unrecognized action; such frames are dropped.
func (f ParticipantFrame) Delta() (ParticipantDelta, bool) {
	if f.Type != FrameTypeParticipant || f.EventID == "" || f.UserID == "" {
		return ParticipantDelta{}, false
	}
	action := DeltaAction(f.Action)
	if !action.Valid() {
		return ParticipantDelta{}, false
	}
	return ParticipantDelta{EventID: f.EventID, UserID: f.UserID, Action: action}, true
}
