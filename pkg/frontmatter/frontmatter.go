// Package frontmatter splits markdown documents into a leading `---`
// delimited YAML block and a body, and serialises metadata back into the
// same delimited form. Malformed metadata never loses the body.
package frontmatter

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Document is the result of parsing a markdown document.
type Document struct {
	Frontmatter    *Metadata
	Body           string
	HadFrontmatter bool
	ParseError     bool
	// Err describes why the metadata block was rejected when ParseError is set.
	Err error
}

// Parse splits content into metadata and body. Without an opening
// delimiter on the first line (or without a closing one) the whole content
// is the body. When the block is present but is not a valid YAML mapping,
// ParseError is set, Frontmatter is empty and Body holds the full content.
func Parse(content string) *Document {
	block, body, ok := split(content)
	if !ok {
		return &Document{Frontmatter: NewMetadata(), Body: content}
	}

	fm, err := decodeBlock(block)
	if err != nil {
		return &Document{
			Frontmatter:    NewMetadata(),
			Body:           content,
			HadFrontmatter: true,
			ParseError:     true,
			Err:            err,
		}
	}

	return &Document{
		Frontmatter:    fm,
		Body:           body,
		HadFrontmatter: true,
	}
}

// Format serialises metadata into a delimited block, one key per line in
// insertion order, terminated by a newline after the closing delimiter.
// Comments in the original block are not carried through Metadata, so they
// are dropped.
func Format(fm *Metadata) (string, error) {
	if fm.Len() == 0 {
		return delimiter + "\n" + delimiter + "\n", nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return "", errors.Wrap(err, "failed to encode frontmatter")
	}
	if err := enc.Close(); err != nil {
		return "", errors.Wrap(err, "failed to flush frontmatter encoder")
	}

	return delimiter + "\n" + buf.String() + delimiter + "\n", nil
}

// StripFrontmatter returns the body of content with a single leading blank
// line removed. Content without a delimited block is returned unchanged.
// The block is stripped whether or not it holds valid YAML.
func StripFrontmatter(content string) string {
	_, body, ok := split(content)
	if !ok {
		return content
	}
	switch {
	case strings.HasPrefix(body, "\r\n"):
		return body[2:]
	case strings.HasPrefix(body, "\n"):
		return body[1:]
	default:
		return body
	}
}

// split locates the delimited block. It returns the raw block (without
// delimiter lines) and everything after the closing delimiter line.
func split(content string) (block, body string, ok bool) {
	firstEnd := strings.IndexByte(content, '\n')
	if firstEnd < 0 || !isDelimiter(content[:firstEnd]) {
		return "", "", false
	}

	pos := firstEnd + 1
	for pos <= len(content) {
		end := strings.IndexByte(content[pos:], '\n')
		var line string
		next := len(content)
		if end < 0 {
			line = content[pos:]
		} else {
			line = content[pos : pos+end]
			next = pos + end + 1
		}
		if isDelimiter(line) {
			return content[firstEnd+1 : pos], content[next:], true
		}
		if end < 0 {
			break
		}
		pos = next
	}
	return "", "", false
}

func isDelimiter(line string) bool {
	return strings.TrimRight(line, " \t\r") == delimiter
}

func decodeBlock(block string) (*Metadata, error) {
	block = strings.ReplaceAll(block, "\r\n", "\n")
	if strings.TrimSpace(block) == "" {
		return NewMetadata(), nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(block), &root); err != nil {
		return nil, errors.Wrap(err, "invalid frontmatter yaml")
	}
	// a block holding only comments decodes to an empty document
	if root.Kind == 0 || len(root.Content) == 0 {
		return NewMetadata(), nil
	}

	fm := NewMetadata()
	if err := fm.UnmarshalYAML(root.Content[0]); err != nil {
		return nil, errors.Wrap(err, "invalid frontmatter")
	}
	return fm, nil
}
