package toolbar

import (
	"fmt"
	"strings"

	"github.com/lexcodex/blockkernel/framework"
)

// RenderToolbox draws the visible part of a filtered toolbox as an indented
// tree. Hidden items are skipped; disabled blocks are struck through.
func RenderToolbox(tb *framework.Toolbox) string {
	if tb == nil {
		return dimStyle.Render("(no toolbox)")
	}
	var b strings.Builder
	total, enabled := framework.CountBlocks(tb)
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s · %d/%d blocks enabled", tb.Kind, enabled, total)))
	b.WriteString("\n")
	renderItems(&b, tb.Contents, 1)
	return strings.TrimRight(b.String(), "\n")
}

func renderItems(b *strings.Builder, items []framework.ToolboxItem, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, item := range items {
		switch it := item.(type) {
		case *framework.Category:
			if it.Hidden {
				continue
			}
			fmt.Fprintf(b, "%s%s\n", indent, categoryStyle.Render("▸ "+it.Name))
			renderItems(b, it.Contents, depth+1)
		case *framework.DynamicCategory:
			if it.Hidden {
				continue
			}
			label := fmt.Sprintf("▸ %s (%s)", it.Name, it.Custom)
			if it.Disabled {
				fmt.Fprintf(b, "%s%s\n", indent, disabledStyle.Render(label))
				continue
			}
			fmt.Fprintf(b, "%s%s\n", indent, categoryStyle.Render(label))
		case *framework.Block:
			if it.Disabled {
				line := disabledStyle.Render(it.Type)
				if len(it.DisabledReasons) > 0 {
					line += " " + dimStyle.Render("("+strings.Join(it.DisabledReasons, ", ")+")")
				}
				fmt.Fprintf(b, "%s%s\n", indent, line)
				continue
			}
			fmt.Fprintf(b, "%s%s\n", indent, blockStyle.Render(it.Type))
		case *framework.Separator:
			if it.Hidden {
				continue
			}
			fmt.Fprintf(b, "%s%s\n", indent, dimStyle.Render("──"))
		default:
			fmt.Fprintf(b, "%s%s\n", indent, dimStyle.Render("? "+item.ItemKind()))
		}
	}
}
