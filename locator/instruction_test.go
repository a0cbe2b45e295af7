package locator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgram_DecodeShapes(t *testing.T) {
	single := decodeProgram(t, `[{"type": "first"}, {"type": "action", "operation": "click"}]`)
	assert.False(t, single.Batch)
	require.Len(t, single.Chains, 1)
	assert.Len(t, single.Chains[0], 2)

	batch := decodeProgram(t, `[[{"type": "first"}], [{"type": "last"}]]`)
	assert.True(t, batch.Batch)
	assert.Len(t, batch.Chains, 2)

	var p Program
	assert.Error(t, json.Unmarshal([]byte(`{"type": "first"}`), &p))
}

func TestProgram_EncodePreservesShape(t *testing.T) {
	single, err := json.Marshal(Single(Chain{{Kind: KindFirst}}))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type": "first"}]`, string(single))

	batch, err := json.Marshal(Batch(Chain{{Kind: KindFirst}}))
	require.NoError(t, err)
	assert.JSONEq(t, `[[{"type": "first"}]]`, string(batch))
}

func TestNode_DecodeElementsAndOptions(t *testing.T) {
	var n Node
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "filter",
		"options": {"hasText": "regex:^Buy", "has": [{"type": "locator", "value": ".price"}]},
		"elements": [{"type": "nth", "value": 2}]
	}`), &n))

	assert.Equal(t, KindFilter, n.Kind)
	assert.Equal(t, String("regex:^Buy"), n.Options["hasText"])
	assert.Equal(t, Nodes{{Kind: KindLocator, Value: ".price"}}, n.Options[OptionHas])
	assert.Equal(t, Chain{{Kind: KindNth, Value: float64(2)}}, n.Elements)
}

func TestBuild(t *testing.T) {
	rec := newRecorder()
	chain := Chain{
		{Kind: KindFrameLocator, Value: "#checkout"},
		{Kind: KindGetBy, Operation: "role", Value: "button", Options: Options{"name": String("Pay")}},
		{Kind: KindNth, Value: "1"},
	}

	l, err := Build(rec.root(), chain)
	require.NoError(t, err)
	assert.Equal(t, "root.frameLocator(#checkout).getByRole(button).nth(1)", l.(*fakeLocator).path)

	_, err = Build(rec.root(), Chain{{Kind: KindAction, Operation: "click"}})
	assert.ErrorIs(t, err, ErrGrammar)

	_, err = Build(rec.root(), nil)
	assert.ErrorIs(t, err, ErrGrammar)
}

func TestGrammarError_Message(t *testing.T) {
	err := unknown("'by' value", "css", []string{"text", "role"})
	assert.Equal(t, "invalid 'by' value: css, must be one of text, role", err.Error())

	err = missing("or.elements", "or must have at least one element")
	assert.Equal(t, "invalid or.elements (or must have at least one element)", err.Error())
}
