package stdlib

import (
	"errors"

	"github.com/lollipopkit/luavm/api"
	"github.com/lollipopkit/luavm/value"

	glc "git.lolli.tech/lollipopkit/go_lru_cacher"
	"github.com/tidwall/gjson"
)

// gjsonCacher caches parsed gjson.Result by source string, lifted
// wholesale from the teacher's stdlib/lib_json.go gjsonCacher so repeated
// json.get calls against the same document don't re-parse it.
var gjsonCacher = glc.NewCacher(10)

// openJSON installs the `json` global table with a single `get` field,
// demonstrating the host-function contract with a non-trivial host-side
// dependency and cache beyond the bare print/type/assert/warn quartet
// (see SPEC_FULL.md §4).
func openJSON(l *api.Lua) {
	t := value.NewTable(0, 1)
	t.Set("get", value.NewGoClosure("json.get", jsonGet))
	l.Globals().Set("json", t)
}

// json.get(source, path)
// returns ok, result the way the teacher's jsonGet does: ok=false and an
// empty string when the path doesn't resolve, rather than raising an error.
func jsonGet(args []any) ([]any, error) {
	if len(args) < 2 {
		return nil, errors.New("json.get: expected (source, path)")
	}
	source, ok := args[0].(string)
	if !ok {
		return nil, errors.New("json.get: source must be a string")
	}
	path, ok := args[1].(string)
	if !ok {
		return nil, errors.New("json.get: path must be a string")
	}

	var result gjson.Result
	if cached, ok := gjsonCacher.Get(source); ok {
		result, ok = cached.(gjson.Result)
		if !ok {
			return nil, errors.New("json.get: gjson cache type conversion error")
		}
	} else {
		result = gjson.Parse(source)
		gjsonCacher.Set(source, result)
	}

	found := result.Get(path)
	if !found.Exists() {
		return []any{false, ""}, nil
	}
	return []any{true, found.String()}, nil
}
