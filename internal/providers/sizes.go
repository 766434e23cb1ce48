package providers

import "github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/infra"

// Default dimensions used when a (model, aspect ratio) pair is not in the
// catalog. Falling back instead of failing keeps older clients working when
// the model catalog drifts ahead of the size table.
const (
	defaultWidth  = 1024
	defaultHeight = 1024
)

type size struct {
	Width  int
	Height int
}

// allowedSizes maps a model family prefix to the dimensions each aspect
// ratio resolves to. Providers reject dimensions outside the model's
// supported grid, so these are looked up rather than computed.
var allowedSizes = map[string]map[string]size{
	"runware:100@1": { // FLUX Schnell
		"1:1":  {1024, 1024},
		"16:9": {1344, 768},
		"9:16": {768, 1344},
		"4:3":  {1152, 896},
		"3:4":  {896, 1152},
	},
	"runware:101@1": { // FLUX Dev
		"1:1":  {1024, 1024},
		"16:9": {1344, 768},
		"9:16": {768, 1344},
		"4:3":  {1152, 896},
		"3:4":  {896, 1152},
	},
	"bytedance:3@1": { // Seedream
		"1:1":  {2048, 2048},
		"16:9": {2560, 1440},
		"9:16": {1440, 2560},
		"4:3":  {2304, 1728},
		"3:4":  {1728, 2304},
	},
	"google:4@1": { // Imagen
		"1:1":  {1024, 1024},
		"16:9": {1408, 768},
		"9:16": {768, 1408},
		"4:3":  {1280, 896},
		"3:4":  {896, 1280},
	},
	"wavespeed/flux-dev": {
		"1:1":  {1024, 1024},
		"16:9": {1344, 768},
		"9:16": {768, 1344},
	},
	"fal-ai/flux/dev": {
		"1:1":  {1024, 1024},
		"16:9": {1344, 768},
		"9:16": {768, 1344},
	},
}

// ResolveSize maps (model, aspectRatio) to concrete dimensions. Unknown
// pairs fall back to a square default and log a warning rather than failing
// the request.
func ResolveSize(model, aspectRatio string, logger *infra.Logger) (int, int) {
	if table, ok := allowedSizes[model]; ok {
		if s, ok := table[aspectRatio]; ok {
			return s.Width, s.Height
		}
	}
	if logger != nil {
		logger.Warn().
			Str("model", model).
			Str("aspect_ratio", aspectRatio).
			Int("width", defaultWidth).
			Int("height", defaultHeight).
			Msg("no size entry for model and aspect ratio, using default")
	}
	return defaultWidth, defaultHeight
}
