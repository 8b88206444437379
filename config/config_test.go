package config

import "testing"

func TestParseEmptyReturnsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.InstructionBudget != DefaultInstructionBudget || cfg.MaxStackSize != DefaultMaxStackSize {
		t.Fatalf("Parse(nil) = %+v, want defaults", cfg)
	}
}

func TestParseFields(t *testing.T) {
	cfg, err := Parse([]byte(`{"instruction_budget": 1000, "max_stack_size": 512}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.InstructionBudget != 1000 || cfg.MaxStackSize != 512 {
		t.Fatalf("Parse = %+v, want {1000 512}", cfg)
	}
}

func TestParsePartialDocumentKeepsDefaultForMissingField(t *testing.T) {
	cfg, err := Parse([]byte(`{"instruction_budget": 42}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.InstructionBudget != 42 {
		t.Fatalf("InstructionBudget = %d, want 42", cfg.InstructionBudget)
	}
	if cfg.MaxStackSize != DefaultMaxStackSize {
		t.Fatalf("MaxStackSize = %d, want default %d", cfg.MaxStackSize, DefaultMaxStackSize)
	}
}

func TestParseMalformedJSONErrors(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestParseCachesRepeatedDocument(t *testing.T) {
	doc := []byte(`{"max_stack_size": 99}`)
	cfg1, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg2, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg1 != cfg2 {
		t.Fatalf("repeated Parse gave different results: %+v vs %+v", cfg1, cfg2)
	}
}
