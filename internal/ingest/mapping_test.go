// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package ingest

import (
	"errors"
	"testing"

	"github.com/tomtom215/tracelane/internal/models"
)

func TestNewMapping(t *testing.T) {
	full := map[string]string{"plate": "Matricula", "date": "Fecha", "time": "Hora", "reader_id": "Lector"}

	tests := []struct {
		name    string
		kind    models.SourceKind
		raw     map[string]string
		wantErr error
	}{
		{"lpr complete", models.SourceLPR, full, nil},
		{"lpr without reader", models.SourceLPR, map[string]string{"plate": "P", "date": "D", "time": "T"}, ErrMissingMapping},
		{"gps without reader", models.SourceGPS, map[string]string{"plate": "P", "date": "D", "time": "T"}, nil},
		{"external missing time", models.SourceExternal, map[string]string{"plate": "P", "date": "D"}, ErrMissingMapping},
		{"blank column counts as unmapped", models.SourceGPS, map[string]string{"plate": " ", "date": "D", "time": "T"}, ErrMissingMapping},
		{"unknown kind", models.SourceKind("RADAR"), full, ErrInvalidMapping},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMapping(tt.kind, tt.raw)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewMapping() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMapping_Accessors(t *testing.T) {
	m, err := NewMapping(models.SourceExternal, map[string]string{
		"plate":           "Plate",
		"date":            "When",
		"time":            "When",
		"datetime_format": "YYYY-MM-DD HH:mm",
		"Colour":          "Color (vehicle)",
	})
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}
	if !m.CombinedDateTime() {
		t.Error("CombinedDateTime() = false, want true")
	}
	if got := m.Format(DefaultDatetimeFormat); got != "YYYY-MM-DD HH:mm" {
		t.Errorf("Format() = %q", got)
	}
	if got := m.AttributeColumn("Colour"); got != "Color (vehicle)" {
		t.Errorf("AttributeColumn(Colour) = %q", got)
	}
	if got := m.AttributeColumn("Owner"); got != "Owner" {
		t.Errorf("AttributeColumn(Owner) = %q, want the name itself", got)
	}
	if got := m.MappedColumns(); len(got) != 2 || got[0] != "Plate" || got[1] != "When" {
		t.Errorf("MappedColumns() = %v", got)
	}

	plain := LooseMapping(map[string]string{"reader_id": "Cam"})
	if plain.Format(DefaultDatetimeFormat) != DefaultDatetimeFormat {
		t.Error("Format() did not fall back to the default")
	}
}

func TestDecodeRawMapping(t *testing.T) {
	raw, err := DecodeRawMapping([]byte(`{"plate":"Matricula","date":"Fecha"}`))
	if err != nil {
		t.Fatalf("DecodeRawMapping: %v", err)
	}
	if raw["plate"] != "Matricula" || raw["date"] != "Fecha" {
		t.Errorf("raw = %v", raw)
	}
	if raw, err := DecodeRawMapping(nil); err != nil || len(raw) != 0 {
		t.Errorf("DecodeRawMapping(nil) = %v, %v", raw, err)
	}
	if _, err := DecodeRawMapping([]byte(`{"plate": 3}`)); !errors.Is(err, ErrInvalidMapping) {
		t.Errorf("DecodeRawMapping(non-string) error = %v, want ErrInvalidMapping", err)
	}
	if _, err := DecodeRawMapping([]byte(`not json`)); !errors.Is(err, ErrInvalidMapping) {
		t.Errorf("DecodeRawMapping(garbage) error = %v, want ErrInvalidMapping", err)
	}
}
