package framework

// BlockNotAllowedReason is attached to blocks the allow-list rejects.
const BlockNotAllowedReason = "This block is not allowed"

// FilterToolbox annotates the toolbox in place against the allow-list and
// returns the number of visible units at the root. A nil allow-list enables
// everything. Categories count as one unit when any descendant is visible;
// separators never count.
//
// The filter decides what the editor can *see*; it does not validate the
// tree. Items of an unknown shape are left alone and counted as visible.
func FilterToolbox(root *Toolbox, allow AllowList) int {
	if root == nil {
		return 0
	}
	return filterItems(root.Contents, allow)
}

func filterItems(items []ToolboxItem, allow AllowList) int {
	count := 0
	// count observed at the most recent visible separator
	sepCount := 0
	var lastSep *Separator
	for _, item := range items {
		switch it := item.(type) {
		case *Block:
			visible := allow.Allows(it.Type)
			it.Disabled = !visible
			if visible {
				it.DisabledReasons = nil
				count++
			} else {
				it.DisabledReasons = []string{BlockNotAllowedReason}
			}
		case *DynamicCategory:
			visible := allow.Allows(it.Custom)
			it.Hidden = !visible
			it.Disabled = !visible
			if visible {
				count++
			}
		case *Category:
			children := filterItems(it.Contents, allow)
			it.Hidden = children == 0
			if children > 0 {
				count++
			}
		case *Separator:
			if count == sepCount {
				it.Hidden = true
				continue
			}
			it.Hidden = false
			sepCount = count
			lastSep = it
		case nil:
		default:
			count++
		}
	}
	// nothing visible followed the last separator
	if lastSep != nil && count == sepCount {
		lastSep.Hidden = true
	}
	return count
}

// VisibleBlockTypes lists the enabled block types in traversal order,
// skipping hidden categories.
func VisibleBlockTypes(root *Toolbox) []string {
	if root == nil {
		return nil
	}
	var out []string
	walkVisible(root.Contents, func(b *Block) {
		out = append(out, b.Type)
	})
	return out
}

func walkVisible(items []ToolboxItem, fn func(*Block)) {
	for _, item := range items {
		switch it := item.(type) {
		case *Block:
			if !it.Disabled {
				fn(it)
			}
		case *Category:
			if !it.Hidden {
				walkVisible(it.Contents, fn)
			}
		}
	}
}

// CountBlocks returns the total and enabled number of blocks in the tree.
func CountBlocks(root *Toolbox) (total, enabled int) {
	if root == nil {
		return 0, 0
	}
	var walk func([]ToolboxItem)
	walk = func(items []ToolboxItem) {
		for _, item := range items {
			switch it := item.(type) {
			case *Block:
				total++
				if !it.Disabled {
					enabled++
				}
			case *Category:
				walk(it.Contents)
			}
		}
	}
	walk(root.Contents)
	return total, enabled
}
