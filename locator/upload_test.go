package locator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageUploads_SingleFile(t *testing.T) {
	dir := t.TempDir()
	program := decodeProgram(t, `[
		{"type": "locator", "value": "input[type=file]"},
		{"type": "action", "operation": "setInputFiles", "value": [{"extension": "txt", "content": "SGVsbG8gd29ybGQh"}]}
	]`)

	out, err := Pipeline{StageUploads(dir)}.Apply(context.Background(), program)
	require.NoError(t, err)

	paths, ok := out.Chains[0][1].Value.([]string)
	require.True(t, ok, "expected paths, got %T", out.Chains[0][1].Value)
	require.Len(t, paths, 1)
	assert.True(t, filepath.IsAbs(paths[0]))
	assert.True(t, strings.HasSuffix(paths[0], ".txt"))

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "Hello world!", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// 非上传节点保持不变
	assert.Equal(t, program.Chains[0][0], out.Chains[0][0])
}

func TestStageUploads_MultipleFilesWithDataURI(t *testing.T) {
	dir := t.TempDir()
	program := decodeProgram(t, `[
		{"type": "action", "operation": "setInputFiles", "value": [
			{"extension": "txt", "content": "data:text/plain;base64,SGVsbG8gd29ybGQh"},
			{"extension": ".md", "content": "I0hlbGxvIG1hcmtkb3duIQ=="}
		]}
	]`)

	out, err := Pipeline{StageUploads(dir)}.Apply(context.Background(), program)
	require.NoError(t, err)

	paths := out.Chains[0][0].Value.([]string)
	require.Len(t, paths, 2)

	first, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "Hello world!", string(first))

	assert.True(t, strings.HasSuffix(paths[1], ".md"))
	second, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "#Hello markdown!", string(second))
}

func TestStageUploads_ValidationAggregatesAndWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	program := decodeProgram(t, `[
		{"type": "action", "operation": "setInputFiles", "value": [{"extension": "txt", "content": "SGVsbG8gd29ybGQh"}]},
		{"type": "action", "operation": "setInputFiles", "value": [
			{"extension": 1, "content": "SGk="},
			{"extension": "png", "content": "%%%"},
			"/etc/passwd"
		]}
	]`)

	_, err := Pipeline{StageUploads(dir)}.Apply(context.Background(), program)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Issues, 3)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "nothing should be written on validation failure")
}

func TestStageUploads_EmptyList(t *testing.T) {
	program := Single(Chain{{Kind: KindAction, Operation: "setInputFiles", Value: []any{}}})

	_, err := Pipeline{StageUploads(t.TempDir())}.Apply(context.Background(), program)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStageUploads_PassThroughWithoutUploads(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never")
	chain := Chain{{Kind: KindLocator, Value: "#a"}, {Kind: KindAction, Operation: "click"}}

	out, err := StageUploads(dir)(context.Background(), chain)
	require.NoError(t, err)
	assert.Equal(t, chain, out)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStageUploads_EndToEnd(t *testing.T) {
	rec := newRecorder()
	program := decodeProgram(t, `[
		{"type": "getBy", "operation": "label", "value": "Attachment"},
		{"type": "action", "operation": "setInputFiles", "value": [{"extension": "txt", "content": "SGVsbG8gd29ybGQh"}]}
	]`)

	_, err := NewEngine(StageUploads(t.TempDir())).Run(context.Background(), rec.root(), program)
	require.NoError(t, err)
	assert.Equal(t, []string{"getByLabel(Attachment)", "setInputFiles(1)"}, rec.calls)
}

func TestStripDataURI(t *testing.T) {
	assert.Equal(t, "QUJD", stripDataURI("data:image/png;base64,QUJD"))
	assert.Equal(t, "QUJD", stripDataURI("QUJD"))
	assert.Equal(t, "data:text/plain,abc", stripDataURI("data:text/plain,abc"))
}

func TestEngine_BatchUploadsCheckedBeforeAnyWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	rec := newRecorder()
	program := decodeProgram(t, `[
		[{"type": "locator", "value": "#a"}, {"type": "action", "operation": "setInputFiles", "value": [{"extension": "txt", "content": "SGVsbG8gd29ybGQh"}]}],
		[{"type": "locator", "value": "#b"}, {"type": "action", "operation": "setInputFiles", "value": [{"extension": 5, "content": "SGk="}]}]
	]`)

	engine := NewEngine(StageUploads(dir)).WithChecks(CheckUploads)
	_, err := engine.Run(context.Background(), rec.root(), program)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, rec.calls)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "no chain may be staged when another chain is invalid")
}

func TestCheckUploads(t *testing.T) {
	valid := Chain{{Kind: KindAction, Operation: "setInputFiles", Value: []any{
		map[string]any{"extension": "txt", "content": "SGk="},
	}}}
	assert.NoError(t, CheckUploads(context.Background(), valid))
	assert.NoError(t, CheckUploads(context.Background(), Chain{{Kind: KindAction, Operation: "click"}}))

	invalid := Chain{{Kind: KindAction, Operation: "setInputFiles", Value: []any{"/etc/passwd"}}}
	assert.ErrorIs(t, CheckUploads(context.Background(), invalid), ErrValidation)
}

func TestDecodeContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"padded", "SGVsbG8gd29ybGQ=", "Hello world"},
		{"unpadded", "SGVsbG8gd29ybGQ", "Hello world"},
		{"data uri unpadded", "data:text/plain;base64,SGk", "Hi"},
		{"surrounding space", " SGk=\n", "Hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeContent(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err := DecodeContent("%%%")
	assert.Error(t, err)
}

func TestStageUploads_UnpaddedContent(t *testing.T) {
	chain := Chain{{Kind: KindAction, Operation: "setInputFiles", Value: []any{
		map[string]any{"extension": "txt", "content": "SGVsbG8gd29ybGQ"},
	}}}

	out, err := StageUploads(t.TempDir())(context.Background(), chain)
	require.NoError(t, err)
	paths, ok := out[0].Value.([]string)
	require.True(t, ok)
	require.Len(t, paths, 1)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "Hello world", string(data))
}
