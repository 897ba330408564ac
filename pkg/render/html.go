package render

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/vango-dev/domcore/pkg/dom"
)

// RendererConfig configures the HTML renderer.
type RendererConfig struct {
	// Pretty enables indented output.
	Pretty bool

	// Indent is the string used for each indentation level in pretty mode.
	// Defaults to two spaces if not specified.
	Indent string
}

// Renderer writes committed trees as absolutely positioned HTML, one div per
// node, for inspecting a manager in a browser.
type Renderer struct {
	config RendererConfig
}

// NewRenderer creates a new Renderer with the given configuration.
func NewRenderer(config RendererConfig) *Renderer {
	if config.Indent == "" {
		config.Indent = "  "
	}
	return &Renderer{config: config}
}

// RenderToString renders snap to an HTML fragment.
func (r *Renderer) RenderToString(snap *dom.TreeSnapshot) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToWriter(&buf, snap); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToWriter streams the tree of snap, starting at its root, to w. An
// empty snapshot writes nothing.
func (r *Renderer) RenderToWriter(w io.Writer, snap *dom.TreeSnapshot) error {
	if snap == nil || len(snap.Nodes) == 0 {
		return nil
	}
	byID := make(map[uint32]*dom.NodeSnapshot, len(snap.Nodes))
	for i := range snap.Nodes {
		byID[snap.Nodes[i].ID] = &snap.Nodes[i]
	}
	return r.renderNode(w, byID, &snap.Nodes[0], 0)
}

// RenderPage renders a complete HTML document showing snap at its root size.
func (r *Renderer) RenderPage(w io.Writer, snap *dom.TreeSnapshot) error {
	title := "domcore"
	var width, height float64
	if snap != nil {
		title = fmt.Sprintf("manager %d", snap.ManagerID)
		width, height = snap.Width, snap.Height
	}

	if _, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
.dom-root { position: relative; outline: 1px solid #999; }
.dom-node { position: absolute; box-sizing: border-box; outline: 1px dashed #bbb; font: 12px monospace; }
.dom-node[data-events] { outline-color: #2a7; }
</style>
</head>
<body>
<div class="dom-root" style="width:%gpx;height:%gpx">
`, htmlEscaper.Replace(title), width, height); err != nil {
		return err
	}
	if err := r.RenderToWriter(w, snap); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</div>\n</body>\n</html>\n")
	return err
}

func (r *Renderer) renderNode(w io.Writer, byID map[uint32]*dom.NodeSnapshot, n *dom.NodeSnapshot, depth int) error {
	if r.config.Pretty {
		r.writeIndent(w, depth)
	}

	box := n.Layout
	if _, err := fmt.Fprintf(w, `<div class="dom-node" data-id="%d" data-tag="%s" style="left:%gpx;top:%gpx;width:%gpx;height:%gpx"`,
		n.ID, attrEscaper.Replace(n.Tag), box.Left, box.Top, box.Width, box.Height); err != nil {
		return err
	}
	if err := r.renderProps(w, n.Props); err != nil {
		return err
	}
	if len(n.Events) > 0 {
		if _, err := fmt.Fprintf(w, ` data-events="%s"`, attrEscaper.Replace(strings.Join(n.Events, " "))); err != nil {
			return err
		}
	}
	if _, err := w.Write([]byte{'>'}); err != nil {
		return err
	}

	if text, ok := n.Props["text"]; ok {
		if _, err := io.WriteString(w, htmlEscaper.Replace(propToString(text))); err != nil {
			return err
		}
	}

	if r.config.Pretty && len(n.Children) > 0 {
		w.Write([]byte{'\n'})
	}
	for _, id := range n.Children {
		child, ok := byID[id]
		if !ok {
			continue
		}
		if err := r.renderNode(w, byID, child, depth+1); err != nil {
			return err
		}
	}
	if r.config.Pretty && len(n.Children) > 0 {
		r.writeIndent(w, depth)
	}

	if _, err := io.WriteString(w, "</div>"); err != nil {
		return err
	}
	if r.config.Pretty {
		w.Write([]byte{'\n'})
	}
	return nil
}

// renderProps writes props as data-prop-* attributes in key order. The text
// prop is rendered as content instead.
func (r *Renderer) renderProps(w io.Writer, props dom.Props) error {
	keys := make([]string, 0, len(props))
	for key := range props {
		if key == "text" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := fmt.Fprintf(w, ` data-prop-%s="%s"`,
			attrEscaper.Replace(strings.ToLower(key)), attrEscaper.Replace(propToString(props[key]))); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) writeIndent(w io.Writer, depth int) {
	for i := 0; i < depth; i++ {
		io.WriteString(w, r.config.Indent)
	}
}

var (
	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
	)

	// attrEscaper also escapes whitespace that could break attribute parsing.
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
		"\n", "&#10;",
		"\r", "&#13;",
		"\t", "&#9;",
	)
)

func propToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
