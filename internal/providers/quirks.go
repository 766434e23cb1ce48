package providers

import "strings"

// A quirk is a deterministic, side-effect-free rewrite of an inference task
// applied before serialization. Each model family that deviates from the
// base wire shape gets its own small entry here instead of growing one
// large conditional inside the client.
type quirk struct {
	name  string
	match func(model string) bool
	apply func(t *runwareTask)
}

func modelPrefix(prefix string) func(string) bool {
	return func(model string) bool { return strings.HasPrefix(model, prefix) }
}

var runwareQuirks = []quirk{
	{
		// FLUX models ignore negative prompts and need explicit step and
		// guidance defaults to match catalog pricing.
		name:  "flux-defaults",
		match: modelPrefix("runware:10"),
		apply: func(t *runwareTask) {
			t.NegativePrompt = ""
			if t.Steps == 0 {
				t.Steps = 28
			}
			if t.CFGScale == 0 {
				t.CFGScale = 3.5
			}
		},
	},
	{
		// Seedream requires its settings nested under providerSettings and
		// rejects the top-level steps field.
		name:  "seedream-provider-settings",
		match: modelPrefix("bytedance:"),
		apply: func(t *runwareTask) {
			t.Steps = 0
			t.CFGScale = 0
			t.setProviderSetting("bytedance", map[string]any{"usePreLLM": true})
		},
	},
	{
		// Imagen only accepts PNG output and caps results at one per task.
		name:  "imagen-output",
		match: modelPrefix("google:4"),
		apply: func(t *runwareTask) {
			t.OutputFormat = "PNG"
			t.NumberResults = 1
		},
	},
	{
		// Kling video tasks need a duration and reject width and height,
		// sizing from the seed image instead.
		name:  "kling-video",
		match: modelPrefix("klingai:"),
		apply: func(t *runwareTask) {
			if t.Duration == 0 {
				t.Duration = 5
			}
			t.Width = 0
			t.Height = 0
		},
	},
	{
		// Veo requires providerSettings.google with the resolution string
		// and does not take numeric dimensions.
		name:  "veo-resolution",
		match: modelPrefix("google:veo"),
		apply: func(t *runwareTask) {
			res := t.Resolution
			if res == "" {
				res = "720p"
			}
			t.Width = 0
			t.Height = 0
			t.setProviderSetting("google", map[string]any{"resolution": res})
		},
	},
}

// applyQuirks runs every matching quirk over the task in declaration order.
func applyQuirks(t *runwareTask) []string {
	var applied []string
	for _, q := range runwareQuirks {
		if q.match(t.Model) {
			q.apply(t)
			applied = append(applied, q.name)
		}
	}
	return applied
}
