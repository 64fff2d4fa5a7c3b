package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/osmpolygon/internal/mpassembly"
	"github.com/MeKo-Tech/osmpolygon/internal/types"
	"github.com/paulmach/orb"
)

type fakeAssembler struct {
	relations map[int64]types.AssembledRelation
	errs      map[int64]error
	calls     int
}

func (f *fakeAssembler) AssembleOne(_ context.Context, relationID int64) (types.AssembledRelation, error) {
	f.calls++
	if err, ok := f.errs[relationID]; ok {
		return types.AssembledRelation{}, err
	}
	return f.relations[relationID], nil
}

func squarePolygon() orb.MultiPolygon {
	ring := orb.Ring{{9.0, 52.0}, {9.1, 52.0}, {9.1, 52.1}, {9.0, 52.1}, {9.0, 52.0}}
	return orb.MultiPolygon{{ring}}
}

func TestServeRelationSuccess(t *testing.T) {
	asm := &fakeAssembler{
		relations: map[int64]types.AssembledRelation{
			1: {RelationID: 1, MultiPolygon: squarePolygon(), Tags: map[string]string{"natural": "water"}},
		},
	}
	svc := NewRelationService(asm, nil, Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/relations/1", nil)
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected application/geo+json content type, got %s", ct)
	}
}

func TestServeRelationWithoutStoreAssemblesEachRequest(t *testing.T) {
	asm := &fakeAssembler{
		relations: map[int64]types.AssembledRelation{
			2: {RelationID: 2, MultiPolygon: squarePolygon()},
		},
	}
	svc := NewRelationService(asm, nil, Config{}, nil)

	req1 := httptest.NewRequest(http.MethodGet, "/relations/2", nil)
	rec1 := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec1, req1)

	req2 := httptest.NewRequest(http.MethodGet, "/relations/2", nil)
	rec2 := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec2, req2)

	if rec1.Code != http.StatusOK || rec2.Code != http.StatusOK {
		t.Fatalf("expected both requests to succeed, got %d and %d", rec1.Code, rec2.Code)
	}
	// Without a store, both requests invoke the assembler independently since
	// nothing survives between lock releases to short-circuit the second call.
	if asm.calls != 2 {
		t.Errorf("expected 2 assembler calls without a cache, got %d", asm.calls)
	}
}

func TestServeSecondaryPolygons(t *testing.T) {
	hole := orb.Ring{{9.02, 52.02}, {9.02, 52.05}, {9.05, 52.05}, {9.05, 52.02}, {9.02, 52.02}}
	asm := &fakeAssembler{
		relations: map[int64]types.AssembledRelation{
			3: {
				RelationID:   3,
				MultiPolygon: squarePolygon(),
				Secondary: []types.SecondaryPolygon{
					{SourceWayID: 99, Polygon: orb.Polygon{hole}, Tags: map[string]string{"natural": "wood"}},
				},
			},
		},
	}
	svc := NewRelationService(asm, nil, Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/relations/3/secondary", nil)
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServeRelationMapsCoreErrorsTo422(t *testing.T) {
	asm := &fakeAssembler{
		errs: map[int64]error{4: mpassembly.ErrNoRings},
	}
	svc := NewRelationService(asm, nil, Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/relations/4", nil)
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for a CORE fatal error, got %d", rec.Code)
	}
}

func TestServeRelationMapsOtherErrorsTo500(t *testing.T) {
	asm := &fakeAssembler{
		errs: map[int64]error{5: errors.New("network blew up")},
	}
	svc := NewRelationService(asm, nil, Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/relations/5", nil)
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for a non-CORE error, got %d", rec.Code)
	}
}

func TestParseRelationPath(t *testing.T) {
	tests := []struct {
		path      string
		wantID    int64
		wantSec   bool
		wantOK    bool
		wantError bool
	}{
		{path: "/relations/42", wantID: 42, wantSec: false, wantOK: true},
		{path: "/relations/42/secondary", wantID: 42, wantSec: true, wantOK: true},
		{path: "/relations/42/bogus", wantOK: false},
		{path: "/tiles/42", wantOK: false},
		{path: "/relations/notanumber", wantOK: false},
	}

	for _, tt := range tests {
		id, sec, ok := parseRelationPath(tt.path)
		if ok != tt.wantOK {
			t.Errorf("parseRelationPath(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if id != tt.wantID || sec != tt.wantSec {
			t.Errorf("parseRelationPath(%q) = (%d, %v), want (%d, %v)", tt.path, id, sec, tt.wantID, tt.wantSec)
		}
	}
}

func TestStatusReflectsAssembly(t *testing.T) {
	asm := &fakeAssembler{
		relations: map[int64]types.AssembledRelation{
			6: {RelationID: 6, MultiPolygon: squarePolygon()},
		},
	}
	svc := NewRelationService(asm, nil, Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/relations/6", nil)
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)

	status := svc.Status()
	if status.TotalAssembled != 1 {
		t.Errorf("expected TotalAssembled=1, got %d", status.TotalAssembled)
	}
	if status.ActiveAssemblies != 0 {
		t.Errorf("expected ActiveAssemblies=0 after completion, got %d", status.ActiveAssemblies)
	}
}
