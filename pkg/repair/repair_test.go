package repair

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndRepair_ValidInput(t *testing.T) {
	ok, value, diagnostics := ValidateAndRepair(`{"a":"x","b":"y"}`, []string{"a", "b"})

	assert.True(t, ok)
	assert.Equal(t, map[string]string{"a": "x", "b": "y"}, value)
	assert.Empty(t, diagnostics)
}

func TestValidateAndRepair_FencedBareKey(t *testing.T) {
	ok, value, diagnostics := ValidateAndRepair("```json\n{a: \"x\"}\n```", []string{"a", "b"})

	assert.True(t, ok)
	assert.Equal(t, map[string]string{"a": "x", "b": Sentinel}, value)
	assert.Equal(t, []string{"missing: b"}, diagnostics)
}

func TestValidateAndRepair_ProseWrapper(t *testing.T) {
	raw := `Here is the analysis you asked for:
{"summary": "fine", "risk": "low"}
Let me know if you need more.`

	ok, value, diagnostics := ValidateAndRepair(raw, []string{"summary", "risk"})

	assert.True(t, ok)
	assert.Equal(t, "fine", value["summary"])
	assert.Equal(t, "low", value["risk"])
	assert.Empty(t, diagnostics)
}

func TestValidateAndRepair_InteriorQuotes(t *testing.T) {
	raw := `{"quote": "the paper says "no effect observed" in figure 2", "risk": "HIGH"}`

	ok, value, diagnostics := ValidateAndRepair(raw, []string{"quote", "risk"})

	assert.True(t, ok)
	assert.Equal(t, `the paper says "no effect observed" in figure 2`, value["quote"])
	assert.Equal(t, "HIGH", value["risk"])
	assert.Empty(t, diagnostics)
}

func TestValidateAndRepair_UnterminatedString(t *testing.T) {
	raw := `{"a":"x","b":"this string never ends`

	ok, value, diagnostics := ValidateAndRepair(raw, []string{"a", "b"})

	assert.True(t, ok)
	assert.Equal(t, "x", value["a"])
	assert.Equal(t, "this string never ends", value["b"])
	assert.Empty(t, diagnostics)
}

func TestValidateAndRepair_TruncatedObject(t *testing.T) {
	raw := `{"a":"x","b":"y","c":`

	ok, value, _ := ValidateAndRepair(raw, []string{"a", "b", "c"})

	assert.True(t, ok)
	assert.Equal(t, "x", value["a"])
	assert.Equal(t, "y", value["b"])
	assert.Contains(t, []string{Sentinel, ""}, value["c"])
	assert.NotEmpty(t, value["c"])
}

func TestValidateAndRepair_RawNewlinesInValue(t *testing.T) {
	raw := "{\"a\":\"line one\nline two\",\"b\":\"y\"}"

	ok, value, diagnostics := ValidateAndRepair(raw, []string{"a", "b"})

	assert.True(t, ok)
	assert.Equal(t, "line one\nline two", value["a"])
	assert.Equal(t, "y", value["b"])
	assert.Empty(t, diagnostics)
}

func TestValidateAndRepair_NonStringValues(t *testing.T) {
	ok, value, diagnostics := ValidateAndRepair(
		`{"count": 3, "flagged": true, "score": 7.5}`,
		[]string{"count", "flagged", "score"},
	)

	assert.True(t, ok)
	assert.Equal(t, "3", value["count"])
	assert.Equal(t, "true", value["flagged"])
	assert.Equal(t, "7.5", value["score"])
	assert.Empty(t, diagnostics)
}

func TestValidateAndRepair_GarbageInput(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"not json at all",
		"{{{{",
		"}{",
		"\x00\x01\x02",
		"```json\n```",
		`{"a"`,
		"null",
		"[1,2,3]",
	}

	fields := []string{"a", "b"}
	for _, raw := range inputs {
		ok, value, _ := ValidateAndRepair(raw, fields)

		assert.True(t, ok, "input %q", raw)
		for _, f := range fields {
			assert.NotEmpty(t, value[f], "field %s for input %q", f, raw)
		}
		require.NoError(t, Conforms(value, fields), "input %q", raw)
	}
}

func TestValidateAndRepair_Idempotent(t *testing.T) {
	fields := []string{"a", "b", "c"}

	_, first, _ := ValidateAndRepair("```json\n{a: \"x\"}\n```", fields)

	encoded, err := json.Marshal(first)
	require.NoError(t, err)

	ok, second, diagnostics := ValidateAndRepair(string(encoded), fields)

	assert.True(t, ok)
	assert.Equal(t, first, second)
	assert.Empty(t, diagnostics)
}

func TestValidateAndRepair_Deterministic(t *testing.T) {
	raw := `{"a":"x", b: "broken "quote" here, "c": 12`
	fields := []string{"a", "b", "c", "d"}

	_, first, firstDiag := ValidateAndRepair(raw, fields)
	for range 20 {
		_, value, diagnostics := ValidateAndRepair(raw, fields)
		assert.Equal(t, first, value)
		assert.Equal(t, firstDiag, diagnostics)
	}
}

func TestValidateAndRepair_RegexExtractionHalfRule(t *testing.T) {
	// Broken beyond structural repair but with two of four fields extractable.
	raw := `"a": "alpha", "b": "beta" }}}{{ garbage`

	ok, value, _ := ValidateAndRepair(raw, []string{"a", "b", "c", "d"})

	assert.True(t, ok)
	assert.Equal(t, "alpha", value["a"])
	assert.Equal(t, "beta", value["b"])
	assert.Equal(t, Sentinel, value["c"])
	assert.Equal(t, Sentinel, value["d"])
}

func TestValidateAndRepair_EmptyValueFilled(t *testing.T) {
	ok, value, diagnostics := ValidateAndRepair(`{"a":"", "b":"y"}`, []string{"a", "b"})

	assert.True(t, ok)
	assert.Equal(t, Sentinel, value["a"])
	assert.Contains(t, diagnostics, "empty: a")
}

func TestNormalize_BareKeys(t *testing.T) {
	assert.Equal(t, `{"a": "x", "b_2": "y"}`, Normalize(`{a: "x", b_2: "y"}`))
}

func TestNormalize_InteriorQuoteNotTerminating(t *testing.T) {
	in := `{"k": "say "hi" now"}`
	out := Normalize(in)

	var m map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, `say "hi" now`, m["k"])
}

func TestNormalize_ValidInputUnchanged(t *testing.T) {
	in := `{"a": "x", "nested": {"b": [1, 2]}, "c": "with \"escaped\" quotes"}`
	assert.Equal(t, in, Normalize(in))
}

func TestConforms(t *testing.T) {
	value := map[string]string{"a": "x", "b": "y"}

	assert.NoError(t, Conforms(value, []string{"a", "b"}))
	assert.Error(t, Conforms(value, []string{"a", "b", "c"}))
	assert.NoError(t, Conforms(value, nil))
}

func TestInspectQuality(t *testing.T) {
	long := make([]byte, 80)
	for i := range long {
		long[i] = 'x'
	}

	full := map[string]string{"a": string(long), "b": string(long)}
	report := InspectQuality(full, []string{"a", "b"})
	assert.InDelta(t, 10.0, report.Score, 0.001)
	assert.Zero(t, report.Placeholders)

	hollow := map[string]string{"a": Sentinel, "b": Sentinel}
	report = InspectQuality(hollow, []string{"a", "b"})
	assert.Less(t, report.Score, 5.0)
	assert.Equal(t, 2, report.Placeholders)

	empty := InspectQuality(map[string]string{}, nil)
	assert.Zero(t, empty.Score)
}

func FuzzValidateAndRepair(f *testing.F) {
	f.Add(`{"a":"x","b":"y"}`)
	f.Add("```json\n{a: \"x\"}\n```")
	f.Add(`Sure, here is the result: {"a": "x", "b": "y"} Hope that helps!`)
	f.Add(`{"a": "x", "b": "unterminated`)
	f.Add(`{"a": "quote \" inside", "b": "y"}`)
	f.Add(`{'a': 'x', 'b': 'y'}`)
	f.Add("")
	f.Add("not json at all")
	f.Add("{{{{")
	f.Add("}{")
	f.Add("\x00\x01\x02")
	f.Add("null")
	f.Add("[1,2,3]")
	f.Add(`{"a": {"nested": true}, "b": 3}`)

	fields := []string{"a", "b"}
	f.Fuzz(func(t *testing.T, raw string) {
		ok, value, _ := ValidateAndRepair(raw, fields)

		if !ok {
			t.Fatalf("repair gave up on %q", raw)
		}
		for _, field := range fields {
			if value[field] == "" {
				t.Fatalf("field %s missing for input %q", field, raw)
			}
		}
		if err := Conforms(value, fields); err != nil {
			t.Fatalf("repaired value violates schema for input %q: %v", raw, err)
		}

		ok, again, _ := ValidateAndRepair(raw, fields)
		if !ok {
			t.Fatalf("second pass gave up on %q", raw)
		}
		for field, v := range value {
			if again[field] != v {
				t.Fatalf("repair not deterministic for %q: field %s %q vs %q", raw, field, v, again[field])
			}
		}
	})
}
