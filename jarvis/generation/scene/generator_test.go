package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness"
	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

// StubProvider returns a fixed completion and records every call.
type StubProvider struct {
	mu        sync.Mutex
	text      string
	finish    string
	err       error
	panicWith any
	calls     []ports.PromptInput
	opts      []ports.Options
}

func (p *StubProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, in)
	p.opts = append(p.opts, opts)
	if p.panicWith != nil {
		panic(p.panicWith)
	}
	if p.err != nil {
		return ports.Completion{}, p.err
	}
	finish := p.finish
	if finish == "" {
		finish = ports.FinishStop
	}
	return ports.Completion{Text: p.text, FinishReason: finish}, nil
}

func newTestGenerator(p *StubProvider) *Generator {
	return NewGenerator(p, Options{}, zerolog.Nop())
}

func TestGenerate_Success(t *testing.T) {
	p := &StubProvider{text: "```json\n" + threeObjects + "\n```"}
	g := newTestGenerator(p)

	res := g.Generate(context.Background(), "  a glowing orb on a plinth ")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 3, res.Count)
	assert.Len(t, res.Objects, 3)
	assert.False(t, res.WasTruncated)

	require.Len(t, p.calls, 1)
	call := p.calls[0]
	assert.Equal(t, generateSystemPrompt, call.System)
	require.Len(t, call.Messages, 1)
	assert.Equal(t, ports.RoleUser, call.Messages[0].Role)
	assert.Equal(t, "Request: a glowing orb on a plinth\n\nOutput the JSON array now:", call.Messages[0].Content)

	opts := p.opts[0]
	assert.Equal(t, 8000, opts.MaxNewTokens)
	assert.InDelta(t, 0.25, opts.Temperature, 1e-6)
	assert.Equal(t, 60000, opts.TimeoutMs)
}

func TestGenerate_TruncatedCompletion(t *testing.T) {
	p := &StubProvider{
		text:   strings.TrimSuffix(threeObjects, "}]"),
		finish: ports.FinishLength,
	}
	res := newTestGenerator(p).Generate(context.Background(), "a plinth")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.Count)
	assert.True(t, res.WasTruncated)
	assert.Equal(t, "Orb", res.Objects[1].Name)
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	p := &StubProvider{text: threeObjects}
	res := newTestGenerator(p).Generate(context.Background(), "   ")

	assert.False(t, res.Success)
	assert.Equal(t, msgNoPrompt, res.Error)
	assert.Empty(t, res.Objects)
	assert.Equal(t, ports.KindValidation, ports.KindOf(res.Err))
	assert.Empty(t, p.calls)
}

func TestGenerate_RecoveryFailures(t *testing.T) {
	long := `[{"name": "` + strings.Repeat("y", 400)

	tests := []struct {
		name    string
		text    string
		wantMsg string
		wantRaw string
	}{
		{"prose only", "I cannot build that.", msgNoJSON, "I cannot build that."},
		{"unclosable", long, msgUnparseable, long[:300]},
		{"no valid objects", `["a", 1, null]`, msgNoObjectsGenerate, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestGenerator(&StubProvider{text: tt.text}).Generate(context.Background(), "a tree")
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantMsg, res.Error)
			assert.Equal(t, tt.wantRaw, res.Raw)
			assert.NotNil(t, res.Objects)
			assert.Empty(t, res.Objects)
		})
	}
}

func TestGenerate_ProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"missing key", ports.ConfigError("complete", ports.ErrMissingCredentials)},
		{"timeout", ports.TransientError("complete", "openai", ports.ErrTimeout)},
		{"rate limited", ports.TransientError("complete", "openai", ports.ErrRateLimited)},
		{"bad response", ports.ResponseError("complete", "openai", fmt.Errorf("status 500"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestGenerator(&StubProvider{err: tt.err}).Generate(context.Background(), "a car")
			assert.False(t, res.Success)
			assert.Equal(t, harness.UserMessage(tt.err), res.Error)
			assert.ErrorIs(t, res.Err, tt.err)
		})
	}
}

func TestGenerate_ProviderPanicContained(t *testing.T) {
	res := newTestGenerator(&StubProvider{panicWith: "boom"}).Generate(context.Background(), "a car")

	assert.False(t, res.Success)
	assert.Equal(t, ports.KindProviderResponse, ports.KindOf(res.Err))
	assert.True(t, strings.HasPrefix(res.Error, "⚠ LLM error: "), res.Error)
}

func TestGenerate_NoProvider(t *testing.T) {
	res := NewGenerator(nil, Options{}, zerolog.Nop()).Generate(context.Background(), "a car")
	assert.False(t, res.Success)
	assert.Equal(t, ports.KindConfig, ports.KindOf(res.Err))
}

func TestModify_SmallSceneSentVerbatim(t *testing.T) {
	current := []SceneObject{{
		Name:     "Cube",
		Type:     Box,
		Geometry: DefaultGeometry(Box),
		Scale:    Vec3{1, 1, 1},
		Material: DefaultMaterial,
	}}
	p := &StubProvider{text: `[{"name":"Cube","type":"box","position":[0,2,0]}]`}

	res := newTestGenerator(p).Modify(context.Background(), current, "move the cube up")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, Vec3{0, 2, 0}, res.Objects[0].Position)

	want, err := json.Marshal(current)
	require.NoError(t, err)

	require.Len(t, p.calls, 1)
	assert.Equal(t, modifySystemPrompt, p.calls[0].System)
	assert.Equal(t,
		"Current scene:\n"+string(want)+"\n\nModification: move the cube up\n\nOutput complete modified JSON array now:",
		p.calls[0].Messages[0].Content)
}

func TestModify_LargeSceneIsCut(t *testing.T) {
	current := make([]SceneObject, 40)
	for i := range current {
		current[i] = SceneObject{
			Name:     fmt.Sprintf("Block_%02d", i),
			Type:     Box,
			Geometry: DefaultGeometry(Box),
			Scale:    Vec3{1, 1, 1},
			Material: DefaultMaterial,
		}
	}
	full, err := json.Marshal(current)
	require.NoError(t, err)
	require.Greater(t, len(full), 4000)

	p := &StubProvider{text: threeObjects}
	res := newTestGenerator(p).Modify(context.Background(), current, "remove the blocks")
	require.True(t, res.Success, res.Error)

	content := p.calls[0].Messages[0].Content
	assert.Contains(t, content, "  // ... (showing first 20 objects)")
	assert.Contains(t, content, "Block_19")
	assert.NotContains(t, content, "Block_20")
}

func TestModify_EmptyScene(t *testing.T) {
	p := &StubProvider{text: `[{"type":"cone","position":[0,0,0]}]`}
	res := newTestGenerator(p).Modify(context.Background(), nil, "add a cone")

	require.True(t, res.Success, res.Error)
	assert.Contains(t, p.calls[0].Messages[0].Content, "Current scene:\n[]\n")
}

func TestModify_NoObjects(t *testing.T) {
	res := newTestGenerator(&StubProvider{text: `[]`}).Modify(context.Background(), nil, "clear it")
	assert.False(t, res.Success)
	assert.Equal(t, msgNoObjectsModify, res.Error)
}

func TestResult_MarshalJSON(t *testing.T) {
	ok := Result{
		Objects:      []SceneObject{{Name: "A", Type: Cone, Geometry: DefaultGeometry(Cone), Material: DefaultMaterial}},
		Count:        1,
		Success:      true,
		WasTruncated: true,
	}
	data, err := json.Marshal(ok)
	require.NoError(t, err)

	var success map[string]any
	require.NoError(t, json.Unmarshal(data, &success))
	assert.ElementsMatch(t, []string{"objects", "count", "success", "was_truncated"}, keys(success))
	assert.Equal(t, true, success["was_truncated"])
	assert.EqualValues(t, 1, success["count"])

	failed := failure(ports.ErrNoJSON, msgNoJSON, "nope")
	data, err = json.Marshal(failed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"objects":[],"error":"No JSON data found in AI response.","raw":"nope","success":false}`, string(data))

	data, err = json.Marshal(failure(ports.ErrNoValidObjects, msgNoObjectsModify, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"objects":[],"error":"No valid objects returned.","success":false}`, string(data))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
