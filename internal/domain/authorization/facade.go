// Package authorization compone grants permanentes y permisos temporales en
// una sola decisión de acceso. Nunca muta estado.
package authorization

import (
	"context"
	"fmt"
	"strings"

	"patient-records-access/internal/domain/accesserr"
	"patient-records-access/internal/domain/accessgrants"
	"patient-records-access/internal/domain/temporaryaccess"

	"golang.org/x/sync/errgroup"
)

type Source string

const (
	SourceNone      Source = ""
	SourceGrant     Source = "grant"
	SourceTemporary Source = "temporary"
)

type Decision struct {
	PatientID  string             `json:"patient_id"`
	AccessorID string             `json:"accessor_id"`
	Level      accessgrants.Level `json:"level"`
	Denied     bool               `json:"denied"`

	// Source/SourceID identifican la entrada que ganó.
	Source   Source `json:"source,omitempty"`
	SourceID string `json:"source_id,omitempty"`
}

func (d Decision) Allows(min accessgrants.Level) bool {
	return !d.Denied && d.Level >= min
}

type GrantReader interface {
	ActiveFor(ctx context.Context, patientID, granteeID string) ([]accessgrants.Grant, error)
}

type TemporaryReader interface {
	ValidFor(ctx context.Context, patientID, accessorID string) ([]temporaryaccess.Permission, error)
}

type Facade struct {
	grants    GrantReader
	temporary TemporaryReader
}

func NewFacade(grants GrantReader, temporary TemporaryReader) *Facade {
	return &Facade{grants: grants, temporary: temporary}
}

// Check devuelve el nivel más alto vigente entre ambos stores, o Denied.
func (f *Facade) Check(ctx context.Context, patientID, accessorID string) (Decision, error) {
	patientID = strings.TrimSpace(patientID)
	accessorID = strings.TrimSpace(accessorID)
	if patientID == "" || accessorID == "" {
		return Decision{}, accesserr.Validation("patient and accessor are required")
	}

	var (
		grants []accessgrants.Grant
		perms  []temporaryaccess.Permission
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := f.grants.ActiveFor(gctx, patientID, accessorID)
		grants = items
		return err
	})
	g.Go(func() error {
		items, err := f.temporary.ValidFor(gctx, patientID, accessorID)
		perms = items
		return err
	})
	if err := g.Wait(); err != nil {
		return Decision{}, accesserr.Passthrough(err)
	}

	d := Decision{PatientID: patientID, AccessorID: accessorID, Level: accessgrants.LevelNone}
	if best, ok := accessgrants.HighestLevel(grants); ok {
		d.Level, d.Source, d.SourceID = best.Level, SourceGrant, best.ID
	}
	for _, p := range perms {
		if lvl := p.Scope.Level(); lvl > d.Level {
			d.Level, d.Source, d.SourceID = lvl, SourceTemporary, p.ID
		}
	}
	d.Denied = d.Level == accessgrants.LevelNone
	return d, nil
}

// Require es Check + umbral. Un nivel insuficiente es ErrForbidden.
func (f *Facade) Require(ctx context.Context, patientID, accessorID string, min accessgrants.Level) (Decision, error) {
	d, err := f.Check(ctx, patientID, accessorID)
	if err != nil {
		return Decision{}, err
	}
	if !d.Allows(min) {
		return d, fmt.Errorf("%w: requires %s", accesserr.ErrForbidden, min)
	}
	return d, nil
}
