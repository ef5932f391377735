package handler

import (
	"impfportal/internal/snapshot"
)

// dossierResponse wraps the snapshot every successful call returns. The
// registration code is present exactly once, on the response that created the
// dossier; it cannot be recovered later.
type dossierResponse struct {
	*snapshot.Snapshot
	RegistrationCode string `json:"registration_code,omitempty"`
}

type verifyCodeResponse struct {
	Valid bool `json:"valid"`
}
