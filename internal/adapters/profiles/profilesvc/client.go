package profilesvc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"patient-records-access/internal/domain/accesserr"
	"patient-records-access/internal/platform/httpclient"
	"patient-records-access/internal/ports/profiles"
)

var (
	ErrNotConfigured = errors.New("profile service client not configured")
	ErrUnauthorized  = errors.New("profile service unauthorized")
	ErrUpstream      = errors.New("profile service upstream error")
)

type Config struct {
	BaseURL string
	APIKey  string

	APIKeyHeader string
	Timeout      time.Duration
	// Retries para lecturas ante 5xx o errores de red. 0 = sin reintentos.
	Retries   uint64
	Transport http.RoundTripper
}

// Client implementa profiles.ProfileFetcher y profiles.ActorResolver contra
// el servicio de perfiles.
type Client struct {
	http *httpclient.Client
}

func NewClient(cfg Config) (*Client, error) {
	h := strings.TrimSpace(cfg.APIKeyHeader)
	if h == "" {
		h = "X-Api-Key"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc, err := httpclient.New(httpclient.Options{
		BaseURL:   cfg.BaseURL,
		Timeout:   timeout,
		UserAgent: "patient-records-access/profilesvc",
		Headers:   map[string]string{h: strings.TrimSpace(cfg.APIKey)},
		Retries:   cfg.Retries,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, err
	}
	return &Client{http: hc}, nil
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.http != nil && c.http.BaseURL != ""
}

type profileResponse struct {
	PatientID        string   `json:"patient_id"`
	BloodType        string   `json:"blood_type"`
	Allergies        []string `json:"allergies"`
	Medications      []string `json:"medications"`
	Conditions       []string `json:"conditions"`
	EmergencyContact struct {
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Relation string `json:"relation"`
	} `json:"emergency_contact"`
}

func (c *Client) FetchEmergencyProfile(ctx context.Context, patientID string) (profiles.EmergencyProfile, error) {
	if !c.IsConfigured() {
		return profiles.EmergencyProfile{}, ErrNotConfigured
	}
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return profiles.EmergencyProfile{}, accesserr.Validation("patient id required")
	}

	var out profileResponse
	path := fmt.Sprintf("/v1/patients/%s/emergency-profile", url.PathEscape(patientID))
	if err := c.http.DoJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return profiles.EmergencyProfile{}, mapError(err)
	}

	return profiles.EmergencyProfile{
		PatientID:   patientID,
		BloodType:   out.BloodType,
		Allergies:   nonNil(out.Allergies),
		Medications: nonNil(out.Medications),
		Conditions:  nonNil(out.Conditions),
		EmergencyContact: profiles.Contact{
			Name:     out.EmergencyContact.Name,
			Phone:    out.EmergencyContact.Phone,
			Relation: out.EmergencyContact.Relation,
		},
	}, nil
}

func (c *Client) ResolveActor(ctx context.Context, actorID string) (profiles.Actor, error) {
	if !c.IsConfigured() {
		return profiles.Actor{}, ErrNotConfigured
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return profiles.Actor{}, accesserr.Validation("actor id required")
	}

	var out profiles.Actor
	path := fmt.Sprintf("/v1/users/%s", url.PathEscape(actorID))
	if err := c.http.DoJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return profiles.Actor{}, mapError(err)
	}
	return out, nil
}

func mapError(err error) error {
	status, ok := httpclient.StatusOf(err)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	switch status {
	case http.StatusNotFound:
		return accesserr.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("%w: status=%d", ErrUpstream, status)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
