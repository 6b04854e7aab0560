package router

import (
	"html"
	"strings"
)

// helpText renders the command list in HTML parse mode, followed by the
// footer set with SetHelpFooter.
func (m *CommandManager) helpText() string {
	m.mu.RLock()
	cmds := m.ordered
	footer := m.footer
	m.mu.RUnlock()

	var b strings.Builder
	b.WriteString("<b>Available commands</b>\n")
	for _, c := range cmds {
		if c.Hidden || c.Access == AccessOwnerOnly {
			continue
		}
		usage := strings.TrimSpace(c.Usage)
		if usage == "" {
			usage = "/" + c.Name
		}
		b.WriteString("\n<code>")
		b.WriteString(html.EscapeString(usage))
		b.WriteString("</code>")
		if d := strings.TrimSpace(c.Description); d != "" {
			b.WriteString(" - ")
			b.WriteString(html.EscapeString(d))
		}
	}
	if footer != "" {
		b.WriteString("\n\n")
		b.WriteString(footer)
	}
	return b.String()
}
