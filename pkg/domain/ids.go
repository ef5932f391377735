// Package domain provides typed identifiers for the core entities. IDs are
// validated at parse time so services never see empty or nil identifiers.
package domain

import (
	"regexp"

	"github.com/google/uuid"

	dErrors "impfportal/pkg/domain-errors"
)

// UUID-backed identifiers. Distinct types so the compiler rejects passing a
// slot ID where a dossier ID is expected.
type (
	PersonID      uuid.UUID
	DossierID     uuid.UUID
	SiteID        uuid.UUID
	SlotID        uuid.UUID
	AppointmentID uuid.UUID
)

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be nil")
	}
	return parsed, nil
}

func ParsePersonID(s string) (PersonID, error) {
	u, err := parseUUID(s, "person")
	return PersonID(u), err
}

func ParseDossierID(s string) (DossierID, error) {
	u, err := parseUUID(s, "dossier")
	return DossierID(u), err
}

func ParseSiteID(s string) (SiteID, error) {
	u, err := parseUUID(s, "site")
	return SiteID(u), err
}

func ParseSlotID(s string) (SlotID, error) {
	u, err := parseUUID(s, "slot")
	return SlotID(u), err
}

func ParseAppointmentID(s string) (AppointmentID, error) {
	u, err := parseUUID(s, "appointment")
	return AppointmentID(u), err
}

func NewPersonID() PersonID           { return PersonID(uuid.New()) }
func NewDossierID() DossierID         { return DossierID(uuid.New()) }
func NewSiteID() SiteID               { return SiteID(uuid.New()) }
func NewSlotID() SlotID               { return SlotID(uuid.New()) }
func NewAppointmentID() AppointmentID { return AppointmentID(uuid.New()) }

func (id PersonID) String() string      { return uuid.UUID(id).String() }
func (id DossierID) String() string     { return uuid.UUID(id).String() }
func (id SiteID) String() string        { return uuid.UUID(id).String() }
func (id SlotID) String() string        { return uuid.UUID(id).String() }
func (id AppointmentID) String() string { return uuid.UUID(id).String() }

// Text marshaling keeps the IDs as canonical UUID strings in JSON bodies and
// stored documents.
func (id PersonID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id DossierID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id SiteID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id SlotID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id AppointmentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *PersonID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	*id = PersonID(u)
	return err
}

func (id *DossierID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	*id = DossierID(u)
	return err
}

func (id *SiteID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	*id = SiteID(u)
	return err
}

func (id *SlotID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	*id = SlotID(u)
	return err
}

func (id *AppointmentID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	*id = AppointmentID(u)
	return err
}

func (id PersonID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id DossierID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id SiteID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id SlotID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id AppointmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// DiseaseID identifies a disease the campaign covers ("covid19", "fsme").
// Not a UUID: disease identifiers are stable configuration keys.
type DiseaseID string

var diseaseIDPattern = regexp.MustCompile(`^[a-z][a-z0-9]{1,31}$`)

// ParseDiseaseID validates the lexical shape of a disease identifier. Whether
// the disease is actually configured is checked against the disease registry,
// not here.
func ParseDiseaseID(s string) (DiseaseID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "disease id must not be empty")
	}
	if !diseaseIDPattern.MatchString(s) {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid disease id: %s", s)
	}
	return DiseaseID(s), nil
}

func (id DiseaseID) String() string { return string(id) }
func (id DiseaseID) IsNil() bool    { return id == "" }
