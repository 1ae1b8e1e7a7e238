package caserecord

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/epiwatch/casestore/internal/domain"
	"github.com/epiwatch/casestore/internal/domain/schema"
)

func validPayload() map[string]any {
	return map[string]any{
		"confirmationDate": "2020-03-01",
		"caseReference": map[string]any{
			"sourceId":      "source-1",
			"sourceEntryId": "entry-1",
			"status":        "VERIFIED",
		},
	}
}

func TestFromMap(t *testing.T) {
	reg := schema.NewRegistry()
	c, err := FromMap(validPayload(), reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.ConfirmationDate.Equal(time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ConfirmationDate = %v", c.ConfirmationDate)
	}
	if c.Reference == nil || c.Reference.SourceID != "source-1" {
		t.Fatalf("Reference = %+v", c.Reference)
	}
	if c.Reference.Status != StatusVerified {
		t.Errorf("Status = %q", c.Reference.Status)
	}
}

func TestFromMap_MissingConfirmationDate(t *testing.T) {
	reg := schema.NewRegistry()
	_, err := FromMap(map[string]any{"caseReference": map[string]any{"sourceId": "s"}}, reg)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestFromMap_UnknownKey(t *testing.T) {
	reg := schema.NewRegistry()
	payload := validPayload()
	payload["notRegistered"] = "x"
	_, err := FromMap(payload, reg)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestFromMap_CustomFieldCoercion(t *testing.T) {
	reg := schema.NewRegistry()
	for name, ft := range map[string]schema.Type{
		"variant":         schema.String,
		"onsetDate":       schema.Date,
		"numHospitalized": schema.Integer,
	} {
		if _, err := reg.Register(name, ft); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	payload := validPayload()
	payload["variant"] = "B.1.1.7"
	payload["onsetDate"] = "2020-02-20"
	payload["numHospitalized"] = float64(4) // JSON numbers arrive as float64

	c, err := FromMap(payload, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Custom["variant"] != "B.1.1.7" {
		t.Errorf("variant = %v", c.Custom["variant"])
	}
	if d, ok := c.Custom["onsetDate"].(time.Time); !ok || d.Month() != time.February {
		t.Errorf("onsetDate = %v", c.Custom["onsetDate"])
	}
	if c.Custom["numHospitalized"] != int64(4) {
		t.Errorf("numHospitalized = %v (%T)", c.Custom["numHospitalized"], c.Custom["numHospitalized"])
	}
}

func TestFromMap_CustomFieldBadType(t *testing.T) {
	reg := schema.NewRegistry()
	if _, err := reg.Register("numHospitalized", schema.Integer); err != nil {
		t.Fatalf("register: %v", err)
	}
	payload := validPayload()
	payload["numHospitalized"] = "four"
	_, err := FromMap(payload, reg)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestFromMap_AppliesDefaults(t *testing.T) {
	reg := schema.NewRegistry()
	f, err := schema.New("status2", schema.String)
	if err != nil {
		t.Fatalf("new field: %v", err)
	}
	if err := reg.Put(f.WithDefault("pending")); err != nil {
		t.Fatalf("put: %v", err)
	}

	c, err := FromMap(validPayload(), reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Custom["status2"] != "pending" {
		t.Errorf("default not applied: %v", c.Custom)
	}
}

func TestFromMap_SnapsAgeRange(t *testing.T) {
	reg := schema.NewRegistry()
	payload := validPayload()
	payload["demographics"] = map[string]any{
		"ageRange": map[string]any{"lower": float64(2), "upper": float64(6)},
	}
	c, err := FromMap(payload, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ar := c.Demographics.AgeRange; ar == nil || ar.Lower != 1 || ar.Upper != 10 {
		t.Errorf("AgeRange = %+v, want [1, 10]", c.Demographics.AgeRange)
	}
}

func TestFromMap_LocationQuery(t *testing.T) {
	reg := schema.NewRegistry()
	payload := validPayload()
	payload["location"] = map[string]any{"query": "Lisbon, Portugal"}
	c, err := FromMap(payload, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.LocationQuery != "Lisbon, Portugal" {
		t.Errorf("LocationQuery = %q", c.LocationQuery)
	}
	if c.Location != nil {
		t.Error("unresolved query must not produce a feature")
	}
}

func TestValidate_ShortCircuitOrder(t *testing.T) {
	reg := schema.NewRegistry()
	c := &Case{
		ConfirmationDate: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
		Demographics:     Demographics{AgeRange: &AgeRange{Lower: 0, Upper: 200}},
		Reference:        &CaseReference{}, // also invalid, but age range is reported first
	}
	err := c.Validate(reg)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if got := err.Error(); !strings.Contains(got, "age range") {
		t.Errorf("error = %q, want the age range violation first", got)
	}
}

func TestValidate_ReferenceRules(t *testing.T) {
	reg := schema.NewRegistry()
	base := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)

	missingSource := &Case{ConfirmationDate: base, Reference: &CaseReference{Status: StatusVerified}}
	if err := missingSource.Validate(reg); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing sourceId: error = %v", err)
	}

	badStatus := &Case{ConfirmationDate: base, Reference: &CaseReference{SourceID: "s", Status: "MAYBE"}}
	if err := badStatus.Validate(reg); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad status: error = %v", err)
	}

	ok := &Case{ConfirmationDate: base, Reference: &CaseReference{SourceID: "s", Status: StatusUnverified}}
	if err := ok.Validate(reg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_RequiredCustomField(t *testing.T) {
	reg := schema.NewRegistry()
	f, _ := schema.New("variant", schema.String)
	if err := reg.Put(f.AsRequired()); err != nil {
		t.Fatalf("put: %v", err)
	}

	c := &Case{ConfirmationDate: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)}
	if err := c.Validate(reg); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}

	c.Custom = map[string]any{"variant": "B.1.1.7"}
	if err := c.Validate(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLookup(t *testing.T) {
	reg := schema.NewRegistry()
	payload := validPayload()
	payload["location"] = map[string]any{
		"type":       "Feature",
		"geometry":   map[string]any{"type": "Point", "coordinates": []any{float64(14), float64(108)}},
		"properties": map[string]any{"country": "VNM"},
	}
	c, err := FromMap(payload, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.ID = "abc"

	if v, ok := c.Lookup("_id"); !ok || v != "abc" {
		t.Errorf("Lookup(_id) = %v, %v", v, ok)
	}
	if v, ok := c.Lookup("caseReference.sourceId"); !ok || v != "source-1" {
		t.Errorf("Lookup(caseReference.sourceId) = %v, %v", v, ok)
	}
	if v, ok := c.Lookup("location.properties.country"); !ok || v != "VNM" {
		t.Errorf("Lookup(location.properties.country) = %v, %v", v, ok)
	}
	if _, ok := c.Lookup("location.properties.missing"); ok {
		t.Error("Lookup of a missing path must report false")
	}
}

func TestRoundTrip_StoredMap(t *testing.T) {
	reg := schema.NewRegistry()
	payload := validPayload()
	payload["demographics"] = map[string]any{
		"ageRange": map[string]any{"lower": 6, "upper": 10},
	}
	c, err := FromMap(payload, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	back := FromStoredMap("id-1", c.ToMap())
	if back.ID != "id-1" {
		t.Errorf("ID = %q", back.ID)
	}
	if !back.ConfirmationDate.Equal(c.ConfirmationDate) {
		t.Errorf("ConfirmationDate = %v", back.ConfirmationDate)
	}
	if back.Reference == nil || *back.Reference != *c.Reference {
		t.Errorf("Reference = %+v", back.Reference)
	}
	if back.Demographics.AgeRange == nil || *back.Demographics.AgeRange != (AgeRange{6, 10}) {
		t.Errorf("AgeRange = %+v", back.Demographics.AgeRange)
	}
}

func TestCSV_HeaderAndRowLockStep(t *testing.T) {
	reg := schema.NewRegistry()
	if _, err := reg.Register("variant", schema.String); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Register("numHospitalized", schema.Integer); err != nil {
		t.Fatalf("register: %v", err)
	}

	header := CSVHeader(reg)
	wantHeader := []string{"_id", "confirmationDate", "caseReference.sourceId", "variant", "numHospitalized"}
	for i, col := range wantHeader {
		if header[i] != col {
			t.Fatalf("header = %v, want %v", header, wantHeader)
		}
	}

	// Row width matches the header even when customs are absent.
	sparse := &Case{ID: "x", ConfirmationDate: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)}
	if got := sparse.CSVRow(reg); len(got) != len(header) {
		t.Errorf("sparse row has %d columns, header has %d", len(got), len(header))
	}

	full, err := FromMap(map[string]any{
		"confirmationDate": "2020-03-01",
		"caseReference":    map[string]any{"sourceId": "s"},
		"variant":          "B.1.1.7",
		"numHospitalized":  float64(2),
	}, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := full.CSVRow(reg)
	if len(row) != len(header) {
		t.Fatalf("row = %v", row)
	}
	if row[1] != "2020-03-01" || row[3] != "B.1.1.7" || row[4] != "2" {
		t.Errorf("row = %v", row)
	}
}
