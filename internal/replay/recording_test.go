// internal/replay/recording_test.go
package replay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

func TestDecodeRecording(t *testing.T) {
	want := []schemas.Step{{
		ID:        "s1",
		Type:      schemas.StepClick,
		Selectors: []schemas.Selector{{Locator: "#buy", IsActive: true}},
		WaitingConditions: []schemas.WaitingCondition{
			{Type: schemas.ElementIsVisible, IsActive: true},
		},
	}}
	stepJSON := `{"id":"s1","type":"click","selectors":[{"locator":"#buy","isActive":true}],
		"waitingConditions":[{"type":"ELEMENT_IS_VISIBLE","isActive":true}]}`

	t.Run("object", func(t *testing.T) {
		rec, err := DecodeRecording(strings.NewReader(`{"name":"checkout","startUrl":"https://shop.test","steps":[` + stepJSON + `]}`))
		require.NoError(t, err)
		assert.Equal(t, "checkout", rec.Name)
		assert.Equal(t, "https://shop.test", rec.StartURL)
		if diff := cmp.Diff(want, rec.Steps); diff != "" {
			t.Errorf("steps mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("bare array", func(t *testing.T) {
		rec, err := DecodeRecording(strings.NewReader("  [" + stepJSON + "]"))
		require.NoError(t, err)
		assert.Empty(t, rec.Name)
		if diff := cmp.Diff(want, rec.Steps); diff != "" {
			t.Errorf("steps mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDecodeRecording_Errors(t *testing.T) {
	cases := map[string]struct {
		input string
		msg   string
	}{
		"malformed":         {`{"steps":`, "failed to decode recording"},
		"empty":             {`{"name":"x","steps":[]}`, "recording contains no steps"},
		"unknown condition": {`[{"id":"a","type":"click","waitingConditions":[{"type":"ELEMENT_IS_SHINY"}]}]`, "failed to decode steps"},
		"two active": {
			`[{"id":"a","type":"click","selectors":[{"locator":"#x","isActive":true},{"locator":"#y","isActive":true}]}]`,
			"step 0:",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRecording(strings.NewReader(tc.input))
			assert.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestLoadRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"w","type":"wait"}]`), 0o644))
	rec, err := LoadRecording(path)
	require.NoError(t, err)
	require.Len(t, rec.Steps, 1)
	assert.Equal(t, schemas.StepWait, rec.Steps[0].Type)

	_, err = LoadRecording(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to open recording")
}
