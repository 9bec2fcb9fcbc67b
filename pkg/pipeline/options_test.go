package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
)

func TestOptionType_String(t *testing.T) {
	t.Parallel()

	assert.Empty(t, pipeline.BoolOption.String())
	assert.Equal(t, "int", pipeline.IntOption.String())
	assert.Equal(t, "string", pipeline.StringOption.String())
	assert.Equal(t, "float", pipeline.FloatOption.String())
	assert.Equal(t, "string", pipeline.StringsOption.String())
	assert.Panics(t, func() { _ = pipeline.OptionType(99).String() })
}

func TestOption_FormatDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  pipeline.Option
		want string
	}{
		{name: "string", opt: pipeline.Option{Type: pipeline.StringOption, Default: "f"}, want: `"f"`},
		{name: "strings", opt: pipeline.Option{Type: pipeline.StringsOption, Default: []string{"a", "b"}}, want: `"a,b"`},
		{name: "nil strings", opt: pipeline.Option{Type: pipeline.StringsOption, Default: []string(nil)}, want: `""`},
		{name: "float", opt: pipeline.Option{Type: pipeline.FloatOption, Default: 0.95}, want: "0.95"},
		{name: "int", opt: pipeline.Option{Type: pipeline.IntOption, Default: 2}, want: "2"},
		{name: "bool", opt: pipeline.Option{Type: pipeline.BoolOption, Default: false}, want: "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.opt.FormatDefault())
		})
	}
}

func TestOptions_MatchDefaultConfig(t *testing.T) {
	t.Parallel()

	defaults := pipeline.DefaultConfig()

	byName := make(map[string]pipeline.Option)
	for _, opt := range pipeline.Options() {
		byName[opt.Name] = opt
	}

	assert.Equal(t, defaults.Components, byName[pipeline.OptionComponents].Default)
	assert.Equal(t, defaults.Confidence, byName[pipeline.OptionConfidence].Default)
	assert.Equal(t, string(defaults.Scaling), byName[pipeline.OptionScaling].Default)
	assert.Equal(t, defaults.Limits.Joint, byName[pipeline.OptionJoint].Default)
	assert.Len(t, byName, 8)
}
