package runner

import "strings"

// SanitizeSegmentText cleans a finalized segment's text before it reaches
// the Streaming Renderer. Trimmed down from the teacher's full sanitization
// pipeline: the agent stream already separates thinking from text as
// distinct typed events here, so tool-call-XML and <think> stripping have
// no text-channel leakage to catch. What remains: stray MEDIA: reference
// lines (media is delivered as attachments, not text) and collapsing
// accidental duplicate paragraph blocks.
func SanitizeSegmentText(content string) string {
	if content == "" {
		return content
	}
	content = stripMediaLines(content)
	content = collapseConsecutiveDuplicateBlocks(content)
	return strings.TrimSpace(content)
}

func stripMediaLines(content string) string {
	if !strings.Contains(content, "MEDIA:") {
		return content
	}
	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "MEDIA:") {
			continue
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}

func collapseConsecutiveDuplicateBlocks(content string) string {
	blocks := strings.Split(content, "\n\n")
	if len(blocks) <= 1 {
		return content
	}
	result := make([]string, 0, len(blocks))
	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		if len(result) > 0 && trimmed == strings.TrimSpace(result[len(result)-1]) {
			continue
		}
		result = append(result, block)
	}
	return strings.Join(result, "\n\n")
}
