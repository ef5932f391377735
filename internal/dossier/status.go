// Package dossier owns the per-person, per-disease vaccination record and its
// lifecycle. Every status change flows through the closed transition table in
// this file; illegal transitions are rejected, never silently ignored.
package dossier

import (
	dErrors "impfportal/pkg/domain-errors"
)

// Status is the dossier's lifecycle position. Primary track first, booster
// track after Complete, plus the waive and delete side states.
type Status string

const (
	StatusRegistered      Status = "registered"
	StatusReleased        Status = "released"
	StatusSiteChosen      Status = "site_chosen"
	StatusBooked          Status = "booked"
	StatusDose1Controlled Status = "dose1_controlled"
	StatusDose1Given      Status = "dose1_given"
	StatusDose2Controlled Status = "dose2_controlled"
	StatusComplete        Status = "complete"

	StatusBoosterReleased   Status = "booster_released"
	StatusBoosterSiteChosen Status = "booster_site_chosen"
	StatusBoosterBooked     Status = "booster_booked"
	StatusBoosterControlled Status = "booster_controlled"
	StatusBoosterGiven      Status = "booster_given"

	StatusRefusedDose2 Status = "refused_dose2"
	StatusDeleted      Status = "deleted"
)

// Event triggers a status transition.
type Event string

const (
	EventRelease        Event = "release"
	EventChooseSite     Event = "choose_site"
	EventBook           Event = "book"
	EventCancelBooking  Event = "cancel_booking"
	EventControl        Event = "control"
	EventDoseGiven      Event = "dose_given"
	EventFinalDoseGiven Event = "final_dose_given"
	EventWaive          Event = "waive_second_dose"
	EventWaiveComplete  Event = "waive_second_dose_complete"
	EventResume         Event = "resume_second_dose"
	EventDoseReverted   Event = "dose_reverted"
	EventExternalProof  Event = "external_proof_completes"
	EventBoosterRelease Event = "booster_release"
	EventDelete         Event = "delete"
)

type transitionKey struct {
	from  Status
	event Event
}

// transitions is the closed set of legal moves. Anything absent here is an
// illegal transition.
var transitions = map[transitionKey]Status{
	{StatusRegistered, EventRelease}:    StatusReleased,
	{StatusReleased, EventChooseSite}:   StatusSiteChosen,
	{StatusSiteChosen, EventChooseSite}: StatusSiteChosen,
	{StatusSiteChosen, EventBook}:       StatusBooked,

	{StatusBooked, EventCancelBooking}: StatusSiteChosen,
	{StatusBooked, EventControl}:       StatusDose1Controlled,

	{StatusDose1Controlled, EventDoseGiven}:      StatusDose1Given,
	{StatusDose1Controlled, EventFinalDoseGiven}: StatusComplete,

	{StatusDose1Given, EventControl}:       StatusDose2Controlled,
	{StatusDose1Given, EventWaive}:         StatusRefusedDose2,
	{StatusDose1Given, EventWaiveComplete}: StatusComplete,

	{StatusDose2Controlled, EventFinalDoseGiven}: StatusComplete,

	{StatusRefusedDose2, EventResume}: StatusDose1Given,

	{StatusComplete, EventBoosterRelease}: StatusBoosterReleased,

	{StatusBoosterReleased, EventChooseSite}:   StatusBoosterSiteChosen,
	{StatusBoosterSiteChosen, EventChooseSite}: StatusBoosterSiteChosen,
	{StatusBoosterSiteChosen, EventBook}:       StatusBoosterBooked,

	{StatusBoosterBooked, EventCancelBooking}: StatusBoosterSiteChosen,
	{StatusBoosterBooked, EventControl}:       StatusBoosterControlled,

	{StatusBoosterControlled, EventDoseGiven}: StatusBoosterGiven,

	{StatusBoosterGiven, EventBoosterRelease}: StatusBoosterReleased,

	// Deleting the only administered dose reverts to the controlled state
	// it was given from.
	{StatusDose1Given, EventDoseReverted}:   StatusDose1Controlled,
	{StatusComplete, EventDoseReverted}:     StatusDose2Controlled,
	{StatusBoosterGiven, EventDoseReverted}: StatusBoosterControlled,

	// An accepted external proof that completes the primary series jumps the
	// dossier to Complete from any status without live primary appointments.
	{StatusRegistered, EventExternalProof}:   StatusComplete,
	{StatusReleased, EventExternalProof}:     StatusComplete,
	{StatusSiteChosen, EventExternalProof}:   StatusComplete,
	{StatusDose1Given, EventExternalProof}:   StatusComplete,
	{StatusRefusedDose2, EventExternalProof}: StatusComplete,
}

// deletableFrom: any live status may be deleted.
func deletable(from Status) bool {
	return from != StatusDeleted
}

// Next resolves the transition table. Illegal moves return CodeValidation.
func Next(from Status, event Event) (Status, error) {
	if event == EventDelete {
		if !deletable(from) {
			return "", dErrors.New(dErrors.CodeValidation, "dossier is already deleted")
		}
		return StatusDeleted, nil
	}
	to, ok := transitions[transitionKey{from, event}]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeValidation,
			"illegal transition: %s does not accept %s", from, event)
	}
	return to, nil
}

// CanTransition reports whether the event is legal from the status.
func CanTransition(from Status, event Event) bool {
	_, err := Next(from, event)
	return err == nil
}

// InBoosterTrack reports whether the status belongs to the booster cycle.
func (s Status) InBoosterTrack() bool {
	switch s {
	case StatusBoosterReleased, StatusBoosterSiteChosen, StatusBoosterBooked,
		StatusBoosterControlled, StatusBoosterGiven:
		return true
	}
	return false
}

// Live reports whether the dossier is active (not deleted).
func (s Status) Live() bool {
	return s != StatusDeleted
}

// HasLiveBooking reports whether the status implies live appointments.
func (s Status) HasLiveBooking() bool {
	switch s {
	case StatusBooked, StatusDose1Controlled, StatusDose1Given, StatusDose2Controlled,
		StatusBoosterBooked, StatusBoosterControlled:
		return true
	}
	return false
}
