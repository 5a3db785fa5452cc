// Package taskfile reads and writes the markdown task-file format: YAML front
// matter followed by Content, Context and Suggested Actions sections.
package taskfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/user/deskhand/internal/types"
)

const (
	sectionContent = "Content"
	sectionContext = "Context"
	sectionActions = "Suggested Actions"
)

// DefaultActions is the checklist appended to every new task.
var DefaultActions = []string{"Analyze content", "Draft reply", "Log to CRM"}

var ErrNoFrontMatter = errors.New("missing front matter")

var fence = []byte("---")

// Render serializes task into its on-disk form.
func Render(task *types.TaskFile) ([]byte, error) {
	header, err := yaml.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(fence)
	buf.WriteByte('\n')
	buf.Write(header)
	buf.Write(fence)
	buf.WriteString("\n\n## " + sectionContent + "\n")
	buf.WriteString(strings.TrimRight(task.Body, "\n"))
	buf.WriteString("\n\n## " + sectionContext + "\nFull Data:\n```json\n")
	if len(task.Payload) > 0 {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, task.Payload, "", "  "); err != nil {
			return nil, fmt.Errorf("format payload: %w", err)
		}
		buf.Write(pretty.Bytes())
	} else {
		buf.WriteString("{}")
	}
	buf.WriteString("\n```\n\n## " + sectionActions + "\n")
	for _, a := range DefaultActions {
		buf.WriteString("- [ ] " + a + "\n")
	}
	return buf.Bytes(), nil
}

// Parse reads a task file. The Body and Payload are recovered from the
// Content and Context sections.
func Parse(data []byte) (*types.TaskFile, error) {
	header, rest, err := splitFrontMatter(data)
	if err != nil {
		return nil, err
	}

	task := &types.TaskFile{}
	if err := yaml.Unmarshal(header, task); err != nil {
		return nil, fmt.Errorf("parse front matter: %w", err)
	}
	task.Type = types.ParseTaskType(string(task.Type))

	sections := readSections(rest)
	task.Body = sections.content
	if sections.payload != nil {
		task.Payload = json.RawMessage(sections.payload)
	}
	return task, nil
}

// SniffType finds the task type without a full parse by scanning for a
// "type:" line. It is used when the front matter does not decode.
func SniffType(data []byte) types.TaskType {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "type:"); ok {
			return types.ParseTaskType(strings.Trim(strings.TrimSpace(v), `"'`))
		}
	}
	return types.TaskUnknown
}

func splitFrontMatter(data []byte) (header, rest []byte, err error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if !bytes.HasPrefix(data, fence) {
		return nil, nil, ErrNoFrontMatter
	}
	body := data[len(fence):]
	nl := bytes.IndexByte(body, '\n')
	if nl < 0 || len(bytes.TrimSpace(body[:nl])) != 0 {
		return nil, nil, ErrNoFrontMatter
	}
	body = body[nl+1:]

	for off := 0; off < len(body); {
		end := bytes.IndexByte(body[off:], '\n')
		line := body[off:]
		next := len(body)
		if end >= 0 {
			line = body[off : off+end]
			next = off + end + 1
		}
		if bytes.Equal(bytes.TrimRight(line, "\r "), fence) {
			return body[:off], body[next:], nil
		}
		off = next
	}
	return nil, nil, ErrNoFrontMatter
}

type sections struct {
	content string
	payload []byte
}

type heading struct {
	name       string
	start, end int // line start and end of the heading in the source
}

type codeBlock struct {
	owner int // index of the last known heading before the block, -1 if none
	data  []byte
}

// readSections walks the markdown AST for the known level-2 headings. The
// body is free text and may repeat those headings, so Content is taken from
// the first Content heading up to the last Context heading, and the payload
// from the first json block under that Context heading. Other headings are
// treated as text of whatever section contains them.
func readSections(source []byte) sections {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var found []heading
	var blocks []codeBlock
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level != 2 || node.Lines().Len() == 0 {
				continue
			}
			seg := node.Lines().At(0)
			name := strings.TrimSpace(string(seg.Value(source)))
			if name != sectionContent && name != sectionContext && name != sectionActions {
				continue
			}
			found = append(found, heading{
				name:  name,
				start: lineStart(source, seg.Start),
				end:   lineEnd(source, seg.Stop),
			})
		case *ast.FencedCodeBlock:
			if lang := string(node.Language(source)); lang != "" && lang != "json" {
				continue
			}
			var buf bytes.Buffer
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(source))
			}
			blocks = append(blocks, codeBlock{owner: len(found) - 1, data: bytes.TrimSpace(buf.Bytes())})
		}
	}

	content, context := -1, -1
	for i, h := range found {
		switch {
		case h.name == sectionContent && content < 0:
			content = i
		case h.name == sectionContext && i > content:
			context = i
		}
	}

	var out sections
	if context >= 0 {
		for _, b := range blocks {
			if b.owner == context {
				out.payload = b.data
				break
			}
		}
	}
	if content < 0 {
		return out
	}
	stop := len(source)
	if context >= 0 {
		stop = found[context].start
	} else {
		for _, h := range found[content+1:] {
			if h.name == sectionActions {
				stop = h.start
				break
			}
		}
	}
	if h := found[content]; h.end < stop {
		out.content = strings.Trim(string(source[h.end:stop]), "\n")
	}
	return out
}

func lineStart(source []byte, pos int) int {
	if i := bytes.LastIndexByte(source[:pos], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

func lineEnd(source []byte, pos int) int {
	if i := bytes.IndexByte(source[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(source)
}
