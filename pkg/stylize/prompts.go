package stylize

import "strings"

// DefaultPrompt describes the target anime look
var DefaultPrompt = joinPrompt(`
	anime style, futuristic tactical gear, dynamic lighting, intricate detail, background,
	detailed clothing, expressive accessories, high contrast effects, sleek modern design,
	luminous highlights, soft shadows, precise textures, rhythmic patterns, fluid composition
`)

// DefaultNegativePrompt lists what the generation should avoid
var DefaultNegativePrompt = joinPrompt(`
	low quality, blurry, deformed, duplicate, out of frame, unnatural lighting,
	watermark, text, error, grainy textures, oversaturated colors, unnatural proportions, poorly lit,
	particularly detailed background, unnatural facial composition, inconsistent skin texture, unnatural face shapes.
`)

// joinPrompt collapses a multi-line prompt into one line
func joinPrompt(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// foldNegative appends the negative prompt for backends without a separate
// field for it
func foldNegative(prompt, negative string) string {
	if negative == "" {
		return prompt
	}
	return prompt + "\n\nAvoid: " + negative
}
