package errors

import (
	"fmt"
	"testing"
)

func TestReasonOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category string
	}{
		{"validation", NewValidationError("entry_value", 0.0, "must be positive", ErrInvalidEntryValue), CategoryValidation},
		{"wrapped validation", Wrap(NewValidationError("x", 1, "bad", nil), "evaluating"), CategoryValidation},
		{"fetch", NewDataError("kite", "NSE:INFY", "no candles", ErrOutcomeUnavailable), CategoryFetch},
		{"store", NewStoreError("sqlite", "commit", fmt.Errorf("disk full")), CategoryStore},
		{"corrupt", Wrapf(ErrCorruptState, "loading %s", "state.json"), CategoryStore},
		{"config", Wrap(ErrConfigInvalid, "bounds"), CategoryConfig},
		{"other", fmt.Errorf("boom"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ReasonOf(tt.err)
			if r.Category != tt.category {
				t.Errorf("ReasonOf(%v).Category = %q, want %q", tt.err, r.Category, tt.category)
			}
			if r.Message != tt.err.Error() {
				t.Errorf("ReasonOf message = %q, want %q", r.Message, tt.err.Error())
			}
		})
	}
}

func TestReasonOfNil(t *testing.T) {
	if r := ReasonOf(nil); r != (Reason{}) {
		t.Errorf("ReasonOf(nil) = %+v, want zero", r)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}

func TestUnwrapChains(t *testing.T) {
	err := Wrap(NewValidationError("entry_value", -1.0, "must be positive", ErrInvalidEntryValue), "record")
	if !Is(err, ErrInvalidEntryValue) {
		t.Error("expected ErrInvalidEntryValue in chain")
	}
	var ve *ValidationError
	if !As(err, &ve) || ve.Field != "entry_value" {
		t.Errorf("As(ValidationError) failed, got %+v", ve)
	}
}
