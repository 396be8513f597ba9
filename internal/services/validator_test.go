package services

import (
	"errors"
	"testing"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestValidate_JoinQueue_Valid(t *testing.T) {
	v := newTestValidator(t)

	body := []byte(`{"stance_type":"globalist","persona_label":"The Diplomat","ping_ms":80,"entry_fee":18,"safety_belt":true,"duration":45}`)
	if err := v.Validate(SchemaJoinQueue, body); err != nil {
		t.Fatalf("expected valid join body, got: %v", err)
	}
}

func TestValidate_JoinQueue_Invalid(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name string
		body string
	}{
		{name: "missing stance", body: `{"ping_ms":80,"entry_fee":10,"duration":30}`},
		{name: "empty stance", body: `{"stance_type":"","ping_ms":80,"entry_fee":10,"duration":30}`},
		{name: "negative ping", body: `{"stance_type":"x","ping_ms":-1,"entry_fee":10,"duration":30}`},
		{name: "fractional fee", body: `{"stance_type":"x","ping_ms":1,"entry_fee":10.5,"duration":30}`},
		{name: "unknown field", body: `{"stance_type":"x","ping_ms":1,"entry_fee":10,"duration":30,"user_id":"boom"}`},
		{name: "not json", body: `{"stance_type":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(SchemaJoinQueue, []byte(tc.body))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got: %v", err)
			}
		})
	}
}

func TestValidate_SettleAndCancel(t *testing.T) {
	v := newTestValidator(t)

	if err := v.Validate(SchemaSettleMatch, []byte(`{"score_a":7,"score_b":5}`)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := v.Validate(SchemaSettleMatch, []byte(`{"score_a":-1,"score_b":5}`)); !errors.Is(err, ErrValidation) {
		t.Errorf("negative score: expected ErrValidation, got %v", err)
	}
	if err := v.Validate(SchemaCancelMatch, []byte(`{"reason":"disconnect"}`)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := v.Validate(SchemaCancelMatch, []byte(`{}`)); !errors.Is(err, ErrValidation) {
		t.Errorf("missing reason: expected ErrValidation, got %v", err)
	}
}

func TestValidate_AllSchemasLoaded(t *testing.T) {
	v := newTestValidator(t)

	for _, name := range []string{SchemaJoinQueue, SchemaSettleMatch, SchemaCancelMatch} {
		if _, ok := v.schemas[name]; !ok {
			t.Errorf("missing schema %q", name)
		}
	}
	if err := v.Validate("nope", []byte(`{}`)); err == nil || errors.Is(err, ErrValidation) {
		t.Errorf("unknown schema should be a plain error, got %v", err)
	}
}
