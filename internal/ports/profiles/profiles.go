package profiles

import "context"

// EmergencyProfile son los campos que un responder necesita en una
// emergencia. Los datos pertenecen al subsistema de perfiles.
type EmergencyProfile struct {
	PatientID        string   `json:"patient_id"`
	BloodType        string   `json:"blood_type"`
	Allergies        []string `json:"allergies"`
	Medications      []string `json:"medications"`
	Conditions       []string `json:"conditions"`
	EmergencyContact Contact  `json:"emergency_contact"`
}

type Contact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Relation string `json:"relation,omitempty"`
}

// Actor es la identidad visible de un usuario. Solo se usa para metadata
// de auditoría.
type Actor struct {
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type ProfileFetcher interface {
	FetchEmergencyProfile(ctx context.Context, patientID string) (EmergencyProfile, error)
}

type ActorResolver interface {
	ResolveActor(ctx context.Context, actorID string) (Actor, error)
}
