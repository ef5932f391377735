package admin

import "impfportal/internal/slots"

type sitesResponse struct {
	Sites []*slots.Site `json:"sites"`
}

// createSlotsResponse reports a batch result. Failed is set when processing
// stopped early; Created then holds the slots written before the failure.
type createSlotsResponse struct {
	Created []*slots.Slot `json:"created"`
	Failed  *slotFailure  `json:"failed,omitempty"`
}

type slotFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type nextFreeResponse struct {
	Slot *slots.Slot `json:"slot"`
}
