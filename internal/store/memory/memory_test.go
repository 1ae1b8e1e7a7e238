package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/epiwatch/casestore/internal/domain"
	"github.com/epiwatch/casestore/internal/domain/caserecord"
	"github.com/epiwatch/casestore/internal/domain/caserecord/update"
	"github.com/epiwatch/casestore/internal/domain/filter"
	"github.com/epiwatch/casestore/internal/domain/schema"
	"github.com/epiwatch/casestore/internal/store"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newCase(confirmed time.Time, sourceID, entryID string) *caserecord.Case {
	return &caserecord.Case{
		ConfirmationDate: confirmed,
		Reference: &caserecord.CaseReference{
			SourceID:      sourceID,
			SourceEntryID: entryID,
			Status:        caserecord.StatusVerified,
		},
	}
}

func TestInsertCase_ValidatesFirst(t *testing.T) {
	s := New(schema.NewRegistry())
	bad := &caserecord.Case{} // no confirmation date
	_, err := s.InsertCase(context.Background(), bad)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if n, _ := s.CountCases(context.Background(), filter.Anything{}); n != 0 {
		t.Errorf("invalid case was persisted, count = %d", n)
	}
}

func TestCountCases(t *testing.T) {
	ctx := context.Background()
	s := New(schema.NewRegistry())

	dates := []time.Time{date(2020, 3, 1), date(2020, 3, 15), date(2020, 4, 1)}
	for i, d := range dates {
		c := newCase(d, "src1", string(rune('a'+i)))
		if _, err := s.InsertCase(ctx, c); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	if n, _ := s.CountCases(ctx, filter.Anything{}); n != 3 {
		t.Errorf("Anything count = %d, want 3", n)
	}

	before := filter.Property{Path: "confirmationDate", Op: filter.Less, Value: date(2020, 4, 1)}
	if n, _ := s.CountCases(ctx, before); n != 2 {
		t.Errorf("before-April count = %d, want 2", n)
	}

	both := filter.And{Filters: []filter.Filter{
		before,
		filter.Property{Path: "confirmationDate", Op: filter.Greater, Value: date(2020, 3, 1)},
	}}
	if n, _ := s.CountCases(ctx, both); n != 1 {
		t.Errorf("conjunction count = %d, want 1", n)
	}
}

func TestListCases_PaginationStable(t *testing.T) {
	ctx := context.Background()
	s := New(schema.NewRegistry())

	for i := 0; i < 7; i++ {
		if _, err := s.InsertCase(ctx, newCase(date(2020, 3, 1+i), "src1", string(rune('a'+i)))); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	seen := map[string]bool{}
	var page int64 = 1
	for {
		p, err := s.ListCases(ctx, filter.Anything{}, page, 3)
		if err != nil {
			t.Fatalf("list page %d: %v", page, err)
		}
		if p.Total != 7 {
			t.Errorf("Total = %d, want 7", p.Total)
		}
		for _, c := range p.Cases {
			if seen[c.ID] {
				t.Errorf("case %s duplicated across pages", c.ID)
			}
			seen[c.ID] = true
		}
		if p.NextPage == nil {
			break
		}
		if *p.NextPage != page+1 {
			t.Fatalf("NextPage = %d, want %d", *p.NextPage, page+1)
		}
		page = *p.NextPage
	}
	if len(seen) != 7 {
		t.Errorf("pagination skipped records: saw %d of 7", len(seen))
	}
}

func TestListCases_NextPageAbsentOnLastPage(t *testing.T) {
	ctx := context.Background()
	s := New(schema.NewRegistry())
	for i := 0; i < 3; i++ {
		if _, err := s.InsertCase(ctx, newCase(date(2020, 3, 1), "src1", string(rune('a'+i)))); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	p, _ := s.ListCases(ctx, filter.Anything{}, 1, 3)
	if p.NextPage != nil {
		t.Errorf("NextPage = %d, want absent", *p.NextPage)
	}
}

func TestUpdateCase(t *testing.T) {
	ctx := context.Background()
	s := New(schema.NewRegistry())

	id, err := s.InsertCase(ctx, newCase(date(2020, 3, 1), "src1", "a"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	u := update.New()
	u.Set("caseReference.status", "EXCLUDED")
	u.Set("caseExclusionMetadata.note", "duplicate entry")
	if err := s.UpdateCase(ctx, id, u); err != nil {
		t.Fatalf("update: %v", err)
	}

	p, _ := s.ListCases(ctx, filter.Property{Path: "_id", Op: filter.Equal, Value: id}, 1, 1)
	if len(p.Cases) != 1 {
		t.Fatalf("updated case not found")
	}
	got := p.Cases[0]
	if got.Reference.Status != caserecord.StatusExcluded {
		t.Errorf("Status = %q", got.Reference.Status)
	}
	if !got.IsExcluded() || got.Exclusion.Note != "duplicate entry" {
		t.Errorf("Exclusion = %+v", got.Exclusion)
	}
}

func TestUpdateCase_Unset(t *testing.T) {
	ctx := context.Background()
	reg := schema.NewRegistry()
	if _, err := reg.Register("notes", schema.String); err != nil {
		t.Fatalf("register: %v", err)
	}
	s := New(reg)

	c := newCase(date(2020, 3, 1), "src1", "a")
	c.Custom = map[string]any{"notes": "temp"}
	id, err := s.InsertCase(ctx, c)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	u := update.New()
	u.Unset("notes")
	if err := s.UpdateCase(ctx, id, u); err != nil {
		t.Fatalf("update: %v", err)
	}

	p, _ := s.ListCases(ctx, filter.Anything{}, 1, 1)
	if _, has := p.Cases[0].Custom["notes"]; has {
		t.Error("unset field survived")
	}
}

func TestUpdateCase_NotFound(t *testing.T) {
	s := New(schema.NewRegistry())
	u := update.New()
	u.Set("caseReference.status", "VERIFIED")
	err := s.UpdateCase(context.Background(), "missing", u)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestBatchUpsert_UpdatesByReference(t *testing.T) {
	ctx := context.Background()
	s := New(schema.NewRegistry())

	first := newCase(date(2020, 3, 1), "src1", "entry1")
	if _, err := s.InsertCase(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Same reference, new confirmation date: replace, not create.
	replacement := newCase(date(2020, 3, 9), "src1", "entry1")
	out, err := s.BatchUpsert(ctx, []store.BatchEntry{{Key: "entry1", Case: replacement}})
	if err != nil {
		t.Fatalf("batch upsert: %v", err)
	}
	if out.NumUpdated != 1 || out.NumCreated != 0 {
		t.Errorf("outcome = %+v, want 1 updated / 0 created", out)
	}
	if n, _ := s.CountCases(ctx, filter.Anything{}); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	p, _ := s.ListCases(ctx, filter.Anything{}, 1, 1)
	if !p.Cases[0].ConfirmationDate.Equal(date(2020, 3, 9)) {
		t.Errorf("replacement did not land: %v", p.Cases[0].ConfirmationDate)
	}

	// New reference: creates and increments the count.
	out, err = s.BatchUpsert(ctx, []store.BatchEntry{{Key: "entry2", Case: newCase(date(2020, 3, 10), "src1", "entry2")}})
	if err != nil {
		t.Fatalf("batch upsert: %v", err)
	}
	if out.NumCreated != 1 || out.NumUpdated != 0 {
		t.Errorf("outcome = %+v, want 1 created / 0 updated", out)
	}
	if n, _ := s.CountCases(ctx, filter.Anything{}); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestBatchUpsert_PerItemErrorsDoNotAbort(t *testing.T) {
	ctx := context.Background()
	s := New(schema.NewRegistry())

	bad := &caserecord.Case{} // missing confirmation date
	good := newCase(date(2020, 3, 1), "src1", "ok")

	out, err := s.BatchUpsert(ctx, []store.BatchEntry{
		{Key: "bad", Case: bad},
		{Key: "ok", Case: good},
	})
	if err != nil {
		t.Fatalf("batch upsert: %v", err)
	}
	if out.NumCreated != 1 {
		t.Errorf("NumCreated = %d, want 1", out.NumCreated)
	}
	if _, has := out.Errors["bad"]; !has {
		t.Errorf("Errors = %v, want entry for \"bad\"", out.Errors)
	}
	if n, _ := s.CountCases(ctx, filter.Anything{}); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestBatchUpsert_NoReferenceAlwaysCreates(t *testing.T) {
	ctx := context.Background()
	s := New(schema.NewRegistry())

	for i := 0; i < 2; i++ {
		c := &caserecord.Case{ConfirmationDate: date(2020, 3, 1)}
		out, err := s.BatchUpsert(ctx, []store.BatchEntry{{Key: "x", Case: c}})
		if err != nil {
			t.Fatalf("batch upsert: %v", err)
		}
		if out.NumCreated != 1 {
			t.Errorf("NumCreated = %d, want 1", out.NumCreated)
		}
	}
	if n, _ := s.CountCases(ctx, filter.Anything{}); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestDeleteCase(t *testing.T) {
	ctx := context.Background()
	s := New(schema.NewRegistry())

	id, err := s.InsertCase(ctx, newCase(date(2020, 3, 1), "src1", "a"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.DeleteCase(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteCase(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete error = %v, want ErrNotFound", err)
	}
	if n, _ := s.CountCases(ctx, filter.Anything{}); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestInsertCase_StoredCopyIsIsolated(t *testing.T) {
	ctx := context.Background()
	reg := schema.NewRegistry()
	if _, err := reg.Register("notes", schema.String); err != nil {
		t.Fatalf("register: %v", err)
	}
	s := New(reg)

	c := newCase(date(2020, 3, 1), "src1", "a")
	c.Custom = map[string]any{"notes": "original"}
	if _, err := s.InsertCase(ctx, c); err != nil {
		t.Fatalf("insert: %v", err)
	}

	c.Custom["notes"] = "mutated after insert"

	p, _ := s.ListCases(ctx, filter.Anything{}, 1, 1)
	if p.Cases[0].Custom["notes"] != "original" {
		t.Error("caller mutation leaked into stored case")
	}
}
