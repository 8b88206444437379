// Package config reads the optional VM tuning document an embedder can
// hand in: instruction budget and stack size. Grounded on mods/mod.go's
// gjson.ParseBytes(...).Map() field-at-a-time read (no full schema/struct
// unmarshal, same as stdlib/lib_json.go's json.get), with the parsed
// gjson.Result cached the same way stdlib's gjsonCacher caches parses of
// repeated source.
package config

import (
	glc "git.lolli.tech/lollipopkit/go_lru_cacher"
	"github.com/tidwall/gjson"
)

// defaults mirror "no budget, generous but bounded stack" — a host that
// doesn't supply config gets the same limits as one that supplies an
// empty document.
const (
	DefaultInstructionBudget = 0 // 0 == unbounded
	DefaultMaxStackSize      = 1 << 20
)

// VM holds the tunables a host may set before running a Program.
type VM struct {
	InstructionBudget int64
	MaxStackSize      int
}

var parseCache = glc.NewCacher(8)

// Parse reads an instruction_budget/max_stack_size document. Missing
// fields keep their default. Malformed JSON is reported as an error rather
// than silently falling back, since a host that passed config meant it.
func Parse(doc []byte) (VM, error) {
	cfg := VM{InstructionBudget: DefaultInstructionBudget, MaxStackSize: DefaultMaxStackSize}
	if len(doc) == 0 {
		return cfg, nil
	}
	if !gjson.ValidBytes(doc) {
		return cfg, errInvalidConfig
	}

	key := string(doc)
	var result gjson.Result
	if cached, ok := parseCache.Get(key); ok {
		result, _ = cached.(gjson.Result)
	} else {
		result = gjson.ParseBytes(doc)
		parseCache.Set(key, result)
	}

	if v := result.Get("instruction_budget"); v.Exists() {
		cfg.InstructionBudget = v.Int()
	}
	if v := result.Get("max_stack_size"); v.Exists() {
		cfg.MaxStackSize = int(v.Int())
	}
	return cfg, nil
}
