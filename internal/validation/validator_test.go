// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package validation

import (
	"strings"
	"testing"

	"github.com/arestats/tharsis/internal/models"
)

func TestValidateStructReplayLog(t *testing.T) {
	tests := []struct {
		name      string
		doc       models.ReplayLog
		wantErr   bool
		wantField string
	}{
		{
			name: "valid document",
			doc: models.ReplayLog{
				ReplayID:          "12345",
				PlayerPerspective: "1",
				Players: map[string]*models.PlayerSummary{
					"1": {PlayerID: "1", PlayerName: "red"},
				},
			},
			wantErr: false,
		},
		{
			name: "missing replay_id",
			doc: models.ReplayLog{
				PlayerPerspective: "1",
				Players: map[string]*models.PlayerSummary{
					"1": {PlayerID: "1"},
				},
			},
			wantErr:   true,
			wantField: "ReplayID",
		},
		{
			name: "non-numeric replay_id",
			doc: models.ReplayLog{
				ReplayID:          "abc123",
				PlayerPerspective: "1",
				Players: map[string]*models.PlayerSummary{
					"1": {PlayerID: "1"},
				},
			},
			wantErr:   true,
			wantField: "ReplayID",
		},
		{
			name: "empty players map",
			doc: models.ReplayLog{
				ReplayID:          "12345",
				PlayerPerspective: "1",
				Players:           map[string]*models.PlayerSummary{},
			},
			wantErr:   true,
			wantField: "Players",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.doc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateStruct() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			found := false
			for _, fe := range err.Errors() {
				if fe.Field() == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on field %s, got %v", tt.wantField, err)
			}
		})
	}
}

func TestValidationErrorMessages(t *testing.T) {
	doc := models.ReplayLog{PlayerPerspective: "x"}
	err := ValidateStruct(&doc)
	if err == nil {
		t.Fatal("expected validation error")
	}

	if !strings.Contains(err.Error(), "ReplayID is required") {
		t.Errorf("expected required message, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "decimal digits") {
		t.Errorf("expected digits message, got %q", err.Error())
	}

	details := err.Details()
	if _, ok := details["fields"]; !ok {
		t.Error("expected fields key in details")
	}
}
