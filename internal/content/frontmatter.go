package content

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// splitFrontMatter splits a markdown source into its YAML frontmatter
// block (delimited by "---" lines) and the remaining body. One leading
// line (the kernel's signature marker) may precede the opening "---"; when
// a frontmatter block is found, that line is in neither front nor body.
func splitFrontMatter(src []byte) (front []byte, body []byte, err error) {
	lines := bytes.Split(src, []byte("\n"))
	start := -1
	for i, l := range lines {
		trimmed := strings.TrimSpace(string(l))
		if trimmed == "---" {
			start = i
			break
		}
		// allow a leading signature-marker comment line before frontmatter
		if i > 0 {
			break
		}
	}
	if start == -1 {
		return nil, src, nil
	}
	end := -1
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(string(lines[i])) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, src, fmt.Errorf("unterminated frontmatter block")
	}
	front = bytes.Join(lines[start+1:end], []byte("\n"))
	body = bytes.Join(lines[end+1:], []byte("\n"))
	return front, body, nil
}

func decodeYAML(data []byte, out any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return yaml.Unmarshal(data, out)
}
