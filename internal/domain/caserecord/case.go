// Package caserecord holds the Case aggregate: a single disease-case
// document with a fixed core shape plus registry-backed custom fields.
package caserecord

import (
	"fmt"
	"strings"
	"time"

	"github.com/epiwatch/casestore/internal/domain"
	"github.com/epiwatch/casestore/internal/domain/geojson"
	"github.com/epiwatch/casestore/internal/domain/schema"
)

// VerificationStatus is the curation state of a case reference.
type VerificationStatus string

// Verification status constants.
const (
	StatusUnverified VerificationStatus = "UNVERIFIED"
	StatusVerified   VerificationStatus = "VERIFIED"
	StatusExcluded   VerificationStatus = "EXCLUDED"
)

// DateLayout is the wire format for bare dates.
const DateLayout = "2006-01-02"

// CaseReference identifies the upstream source a case was ingested from.
type CaseReference struct {
	SourceID      string             `json:"sourceId" bson:"sourceId"`
	SourceEntryID string             `json:"sourceEntryId,omitempty" bson:"sourceEntryId,omitempty"`
	Status        VerificationStatus `json:"status" bson:"status"`
}

// Demographics groups the demographic attributes of a case.
type Demographics struct {
	AgeRange *AgeRange `json:"ageRange,omitempty" bson:"ageRange,omitempty"`
}

// ExclusionMetadata is set when a case is excluded from exports.
type ExclusionMetadata struct {
	Note string    `json:"note" bson:"note"`
	Date time.Time `json:"date" bson:"date"`
}

// Case is the central persisted entity.
//
// ID is empty until first stored. LocationQuery holds an unresolved
// free-text location; the service layer resolves it into Location via
// the geocoder before validation, and it is never persisted.
type Case struct {
	ID               string
	ConfirmationDate time.Time
	Reference        *CaseReference
	Location         *geojson.Feature
	LocationQuery    string
	Demographics     Demographics
	Exclusion        *ExclusionMetadata
	Custom           map[string]any
}

// FromMap builds a Case from an untrusted dictionary. Keys that are
// neither core attributes nor registered custom fields are rejected, as
// is a missing confirmationDate. Registry defaults fill absent fields.
func FromMap(raw map[string]any, reg *schema.Registry) (*Case, error) {
	c := &Case{Custom: map[string]any{}}

	for key, val := range raw {
		var err error
		switch key {
		case "_id":
			c.ID, err = asString(key, val)
		case "confirmationDate":
			c.ConfirmationDate, err = asDate(key, val)
		case "caseReference":
			c.Reference, err = referenceFromValue(val)
		case "location":
			err = c.setLocation(val)
		case "demographics":
			c.Demographics, err = demographicsFromValue(val)
		case "caseExclusionMetadata":
			c.Exclusion, err = exclusionFromValue(val)
		default:
			ft, terr := reg.TypeOf(key)
			if terr != nil {
				return nil, fmt.Errorf("unknown field %q: %w", key, domain.ErrValidation)
			}
			var coerced any
			coerced, err = coerceCustom(key, ft, val)
			if err == nil {
				c.Custom[key] = coerced
			}
		}
		if err != nil {
			return nil, err
		}
	}

	if c.ConfirmationDate.IsZero() {
		return nil, fmt.Errorf("confirmationDate is required: %w", domain.ErrValidation)
	}

	for _, f := range reg.Fields() {
		if f.Default() == nil {
			continue
		}
		if _, present := c.Custom[f.Name()]; !present {
			c.Custom[f.Name()] = f.Default()
		}
	}

	if c.Demographics.AgeRange != nil {
		snapped := c.Demographics.AgeRange.Snapped()
		c.Demographics.AgeRange = &snapped
	}

	return c, nil
}

// FromStoredMap hydrates a Case from a storage document without
// validation (the document was validated before it was written).
func FromStoredMap(id string, doc map[string]any) *Case {
	c := &Case{ID: id, Custom: map[string]any{}}
	for key, val := range doc {
		switch key {
		case "_id":
			// id passed explicitly by the backend
		case "confirmationDate":
			c.ConfirmationDate, _ = asDate(key, val)
		case "caseReference":
			c.Reference, _ = referenceFromValue(val)
		case "location":
			_ = c.setLocation(val)
		case "demographics":
			c.Demographics, _ = demographicsFromValue(val)
		case "caseExclusionMetadata":
			c.Exclusion, _ = exclusionFromValue(val)
		default:
			c.Custom[key] = val
		}
	}
	return c
}

// Validate checks the case against its invariants and the registry,
// returning the first violation.
func (c *Case) Validate(reg *schema.Registry) error {
	if c.ConfirmationDate.IsZero() {
		return fmt.Errorf("confirmationDate is required: %w", domain.ErrValidation)
	}
	if c.Demographics.AgeRange != nil {
		if err := c.Demographics.AgeRange.Validate(); err != nil {
			return err
		}
	}
	if c.Location != nil {
		if err := c.Location.Validate(); err != nil {
			return err
		}
	}
	if c.Reference != nil {
		if c.Reference.SourceID == "" {
			return fmt.Errorf("caseReference.sourceId is required: %w", domain.ErrValidation)
		}
		switch c.Reference.Status {
		case StatusUnverified, StatusVerified, StatusExcluded:
		default:
			return fmt.Errorf("invalid caseReference.status %q: %w", c.Reference.Status, domain.ErrValidation)
		}
	}
	for _, f := range reg.Fields() {
		val, present := c.Custom[f.Name()]
		if !present {
			if f.Required() {
				return fmt.Errorf("required field %q missing: %w", f.Name(), domain.ErrValidation)
			}
			continue
		}
		if _, err := coerceCustom(f.Name(), f.FieldType(), val); err != nil {
			return err
		}
	}
	return nil
}

// IsExcluded reports whether the case carries exclusion metadata.
func (c *Case) IsExcluded() bool { return c.Exclusion != nil }

// ReferenceKey returns the case-reference identity used for upsert
// matching, or "" when the case has no reference.
func (c *Case) ReferenceKey() string {
	if c.Reference == nil || c.Reference.SourceID == "" {
		return ""
	}
	return c.Reference.SourceID + "|" + c.Reference.SourceEntryID
}

// ToMap renders the case as a nested document map (the storage shape).
// The _id is not included; backends own identifier handling.
func (c *Case) ToMap() map[string]any {
	m := map[string]any{"confirmationDate": c.ConfirmationDate}
	if c.Reference != nil {
		ref := map[string]any{
			"sourceId": c.Reference.SourceID,
			"status":   string(c.Reference.Status),
		}
		if c.Reference.SourceEntryID != "" {
			ref["sourceEntryId"] = c.Reference.SourceEntryID
		}
		m["caseReference"] = ref
	}
	if c.Location != nil {
		props := make(map[string]any, len(c.Location.Properties))
		for k, v := range c.Location.Properties {
			props[k] = v
		}
		m["location"] = map[string]any{
			"type": c.Location.Type,
			"geometry": map[string]any{
				"type":        c.Location.Geometry.Type,
				"coordinates": append([]float64(nil), c.Location.Geometry.Coordinates...),
			},
			"properties": props,
		}
	}
	if c.Demographics.AgeRange != nil {
		m["demographics"] = map[string]any{
			"ageRange": map[string]any{
				"lower": c.Demographics.AgeRange.Lower,
				"upper": c.Demographics.AgeRange.Upper,
			},
		}
	}
	if c.Exclusion != nil {
		m["caseExclusionMetadata"] = map[string]any{
			"note": c.Exclusion.Note,
			"date": c.Exclusion.Date,
		}
	}
	for k, v := range c.Custom {
		m[k] = v
	}
	return m
}

// Lookup resolves a dotted path against the case's document shape.
// The second return is false when the path does not exist.
func (c *Case) Lookup(path string) (any, bool) {
	if path == "_id" {
		if c.ID == "" {
			return nil, false
		}
		return c.ID, true
	}
	var cur any = c.ToMap()
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (c *Case) setLocation(val any) error {
	m, ok := val.(map[string]any)
	if !ok {
		return fmt.Errorf("location must be an object: %w", domain.ErrValidation)
	}
	if q, has := m["query"]; has {
		query, err := asString("location.query", q)
		if err != nil {
			return err
		}
		c.LocationQuery = query
		return nil
	}
	f, err := featureFromMap(m)
	if err != nil {
		return err
	}
	c.Location = f
	return nil
}

func featureFromMap(m map[string]any) (*geojson.Feature, error) {
	f := &geojson.Feature{}
	f.Type, _ = m["type"].(string)
	if props, ok := m["properties"].(map[string]any); ok {
		f.Properties = props
	}
	geom, ok := m["geometry"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("location.geometry must be an object: %w", domain.ErrValidation)
	}
	f.Geometry.Type, _ = geom["type"].(string)
	coords, ok := geom["coordinates"].([]any)
	if !ok {
		if typed, tok := geom["coordinates"].([]float64); tok {
			f.Geometry.Coordinates = typed
			return f, nil
		}
		return nil, fmt.Errorf("location.geometry.coordinates must be an array: %w", domain.ErrValidation)
	}
	for _, cv := range coords {
		n, err := asFloat("location.geometry.coordinates", cv)
		if err != nil {
			return nil, err
		}
		f.Geometry.Coordinates = append(f.Geometry.Coordinates, n)
	}
	return f, nil
}

func referenceFromValue(val any) (*CaseReference, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("caseReference must be an object: %w", domain.ErrValidation)
	}
	ref := &CaseReference{Status: StatusUnverified}
	if v, has := m["sourceId"]; has {
		s, err := asString("caseReference.sourceId", v)
		if err != nil {
			return nil, err
		}
		ref.SourceID = s
	}
	if v, has := m["sourceEntryId"]; has {
		s, err := asString("caseReference.sourceEntryId", v)
		if err != nil {
			return nil, err
		}
		ref.SourceEntryID = s
	}
	if v, has := m["status"]; has {
		s, err := asString("caseReference.status", v)
		if err != nil {
			return nil, err
		}
		if s != "" {
			ref.Status = VerificationStatus(s)
		}
	}
	return ref, nil
}

func demographicsFromValue(val any) (Demographics, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return Demographics{}, fmt.Errorf("demographics must be an object: %w", domain.ErrValidation)
	}
	d := Demographics{}
	ar, has := m["ageRange"]
	if !has {
		return d, nil
	}
	arm, ok := ar.(map[string]any)
	if !ok {
		return Demographics{}, fmt.Errorf("demographics.ageRange must be an object: %w", domain.ErrValidation)
	}
	lower, err := asInt("demographics.ageRange.lower", arm["lower"])
	if err != nil {
		return Demographics{}, err
	}
	upper, err := asInt("demographics.ageRange.upper", arm["upper"])
	if err != nil {
		return Demographics{}, err
	}
	d.AgeRange = &AgeRange{Lower: int(lower), Upper: int(upper)}
	return d, nil
}

func exclusionFromValue(val any) (*ExclusionMetadata, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("caseExclusionMetadata must be an object: %w", domain.ErrValidation)
	}
	ex := &ExclusionMetadata{}
	if v, has := m["note"]; has {
		s, err := asString("caseExclusionMetadata.note", v)
		if err != nil {
			return nil, err
		}
		ex.Note = s
	}
	if v, has := m["date"]; has {
		d, err := asDate("caseExclusionMetadata.date", v)
		if err != nil {
			return nil, err
		}
		ex.Date = d
	}
	return ex, nil
}

// Coerce converts an untrusted value to the Go representation of the
// given field type: string, time.Time or int64.
func Coerce(name string, ft schema.Type, val any) (any, error) {
	return coerceCustom(name, ft, val)
}

func coerceCustom(name string, ft schema.Type, val any) (any, error) {
	switch ft {
	case schema.String:
		return asString(name, val)
	case schema.Date:
		return asDate(name, val)
	case schema.Integer:
		return asInt(name, val)
	}
	return nil, fmt.Errorf("field %q has unsupported type %q: %w", name, ft, domain.ErrPrecondition)
}

func asString(name string, val any) (string, error) {
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string, got %T: %w", name, val, domain.ErrValidation)
	}
	return s, nil
}

func asDate(name string, val any) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case string:
		if t, err := time.Parse(DateLayout, v); err == nil {
			return t, nil
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("field %q is not a date (want %s): %w", name, DateLayout, domain.ErrValidation)
	default:
		return time.Time{}, fmt.Errorf("field %q must be a date, got %T: %w", name, val, domain.ErrValidation)
	}
}

func asInt(name string, val any) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("field %q must be an integer, got %v: %w", name, v, domain.ErrValidation)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("field %q must be an integer, got %T: %w", name, val, domain.ErrValidation)
	}
}

func asFloat(name string, val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("field %q must be a number, got %T: %w", name, val, domain.ErrValidation)
	}
}
