package framework

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Toolbox kinds understood by the editor surface.
const (
	FlyoutToolboxKind   = "flyoutToolbox"
	CategoryToolboxKind = "categoryToolbox"
)

// Item kinds as they appear in toolbox JSON.
const (
	ItemKindCategory  = "category"
	ItemKindBlock     = "block"
	ItemKindSeparator = "sep"
)

// Toolbox is a toolbox definition: a flat list of blocks or a tree of
// categories. The filter annotates items in place, so callers that share a
// definition should filter a Clone.
type Toolbox struct {
	Kind     string
	Contents []ToolboxItem
	Extra    map[string]json.RawMessage
}

// ToolboxItem is one node of a toolbox tree.
type ToolboxItem interface {
	ItemKind() string
	cloneItem() ToolboxItem
}

// Category is a static grouping with fixed contents.
type Category struct {
	Name          string
	Colour        string
	CategoryStyle string
	Contents      []ToolboxItem
	Hidden        bool
	Extra         map[string]json.RawMessage
}

// DynamicCategory groups blocks generated at render time from a custom key,
// such as the variable or procedure flyouts.
type DynamicCategory struct {
	Name          string
	Custom        string
	Colour        string
	CategoryStyle string
	Hidden        bool
	Disabled      bool
	Extra         map[string]json.RawMessage
}

// Block references a single block type.
type Block struct {
	Type            string
	Disabled        bool
	DisabledReasons []string
	Extra           map[string]json.RawMessage
}

// Separator is a visual gap between groups.
type Separator struct {
	Gap    json.RawMessage
	Hidden bool
	Extra  map[string]json.RawMessage
}

// UnknownItem keeps nodes of an unrecognised shape verbatim.
type UnknownItem struct {
	Kind string
	Raw  json.RawMessage
}

func (*Category) ItemKind() string        { return ItemKindCategory }
func (*DynamicCategory) ItemKind() string { return ItemKindCategory }
func (*Block) ItemKind() string           { return ItemKindBlock }
func (*Separator) ItemKind() string       { return ItemKindSeparator }
func (u *UnknownItem) ItemKind() string   { return u.Kind }

// Clone deep-copies the toolbox, including filter annotations.
func (t *Toolbox) Clone() *Toolbox {
	if t == nil {
		return nil
	}
	return &Toolbox{
		Kind:     t.Kind,
		Contents: cloneItems(t.Contents),
		Extra:    cloneExtra(t.Extra),
	}
}

func (c *Category) cloneItem() ToolboxItem {
	out := *c
	out.Contents = cloneItems(c.Contents)
	out.Extra = cloneExtra(c.Extra)
	return &out
}

func (d *DynamicCategory) cloneItem() ToolboxItem {
	out := *d
	out.Extra = cloneExtra(d.Extra)
	return &out
}

func (b *Block) cloneItem() ToolboxItem {
	out := *b
	if b.DisabledReasons != nil {
		out.DisabledReasons = append([]string(nil), b.DisabledReasons...)
	}
	out.Extra = cloneExtra(b.Extra)
	return &out
}

func (s *Separator) cloneItem() ToolboxItem {
	out := *s
	out.Gap = append(json.RawMessage(nil), s.Gap...)
	out.Extra = cloneExtra(s.Extra)
	return &out
}

func (u *UnknownItem) cloneItem() ToolboxItem {
	return &UnknownItem{Kind: u.Kind, Raw: append(json.RawMessage(nil), u.Raw...)}
}

func cloneItems(items []ToolboxItem) []ToolboxItem {
	if items == nil {
		return nil
	}
	out := make([]ToolboxItem, len(items))
	for i, item := range items {
		out[i] = item.cloneItem()
	}
	return out
}

func cloneExtra(extra map[string]json.RawMessage) map[string]json.RawMessage {
	if extra == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(extra))
	for k, v := range extra {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// ParseToolbox decodes a toolbox from Blockly toolbox JSON. A bare array is
// read as a flyout toolbox.
func ParseToolbox(data []byte) (*Toolbox, error) {
	var tb Toolbox
	if err := json.Unmarshal(data, &tb); err != nil {
		return nil, err
	}
	return &tb, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Toolbox) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		items, err := decodeItems(data)
		if err != nil {
			return err
		}
		*t = Toolbox{Kind: FlyoutToolboxKind, Contents: items}
		return nil
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("toolbox: %w", err)
	}
	out := Toolbox{}
	if err := takeString(fields, "kind", &out.Kind); err != nil {
		return err
	}
	if raw, ok := fields["contents"]; ok {
		items, err := decodeItems(raw)
		if err != nil {
			return err
		}
		out.Contents = items
		delete(fields, "contents")
	}
	if out.Kind == "" {
		out.Kind = inferToolboxKind(out.Contents)
	}
	if len(fields) > 0 {
		out.Extra = fields
	}
	*t = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Toolbox) MarshalJSON() ([]byte, error) {
	fields := cloneExtra(t.Extra)
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	if err := putValue(fields, "kind", t.Kind); err != nil {
		return nil, err
	}
	contents := t.Contents
	if contents == nil {
		contents = []ToolboxItem{}
	}
	if err := putValue(fields, "contents", contents); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func inferToolboxKind(items []ToolboxItem) string {
	for _, item := range items {
		switch item.(type) {
		case *Category, *DynamicCategory:
			return CategoryToolboxKind
		}
	}
	return FlyoutToolboxKind
}

func decodeItems(data []byte) ([]ToolboxItem, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("toolbox contents: %w", err)
	}
	items := make([]ToolboxItem, 0, len(raws))
	for i, raw := range raws {
		item, err := decodeItem(raw)
		if err != nil {
			return nil, fmt.Errorf("toolbox item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeItem(raw json.RawMessage) (ToolboxItem, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		// Not an object; keep it so the filter can treat it as opaque.
		return &UnknownItem{Raw: append(json.RawMessage(nil), raw...)}, nil
	}
	var kind string
	if v, ok := fields["kind"]; ok {
		if err := json.Unmarshal(v, &kind); err != nil {
			return &UnknownItem{Raw: append(json.RawMessage(nil), raw...)}, nil
		}
	}
	switch strings.ToLower(kind) {
	case ItemKindCategory:
		delete(fields, "kind")
		if _, ok := fields["custom"]; ok {
			return decodeDynamicCategory(fields)
		}
		return decodeCategory(fields)
	case ItemKindBlock:
		delete(fields, "kind")
		b := &Block{}
		if err := takeString(fields, "type", &b.Type); err != nil {
			return nil, err
		}
		if err := takeBool(fields, "disabled", &b.Disabled); err != nil {
			return nil, err
		}
		if err := takeValue(fields, "disabledReasons", &b.DisabledReasons); err != nil {
			return nil, err
		}
		b.Extra = nonEmpty(fields)
		return b, nil
	case ItemKindSeparator, "separator":
		delete(fields, "kind")
		s := &Separator{}
		if v, ok := fields["gap"]; ok {
			s.Gap = v
			delete(fields, "gap")
		}
		if err := takeBool(fields, "hidden", &s.Hidden); err != nil {
			return nil, err
		}
		s.Extra = nonEmpty(fields)
		return s, nil
	default:
		return &UnknownItem{Kind: kind, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func decodeCategory(fields map[string]json.RawMessage) (ToolboxItem, error) {
	c := &Category{}
	if err := takeString(fields, "name", &c.Name); err != nil {
		return nil, err
	}
	if err := takeString(fields, "colour", &c.Colour); err != nil {
		return nil, err
	}
	if err := takeString(fields, "categorystyle", &c.CategoryStyle); err != nil {
		return nil, err
	}
	if err := takeBool(fields, "hidden", &c.Hidden); err != nil {
		return nil, err
	}
	if raw, ok := fields["contents"]; ok {
		items, err := decodeItems(raw)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", c.Name, err)
		}
		c.Contents = items
		delete(fields, "contents")
	}
	c.Extra = nonEmpty(fields)
	return c, nil
}

func decodeDynamicCategory(fields map[string]json.RawMessage) (ToolboxItem, error) {
	d := &DynamicCategory{}
	for key, dst := range map[string]*string{
		"name":          &d.Name,
		"custom":        &d.Custom,
		"colour":        &d.Colour,
		"categorystyle": &d.CategoryStyle,
	} {
		if err := takeString(fields, key, dst); err != nil {
			return nil, err
		}
	}
	if err := takeBool(fields, "hidden", &d.Hidden); err != nil {
		return nil, err
	}
	if err := takeBool(fields, "disabled", &d.Disabled); err != nil {
		return nil, err
	}
	d.Extra = nonEmpty(fields)
	return d, nil
}

// MarshalJSON implements json.Marshaler.
func (c *Category) MarshalJSON() ([]byte, error) {
	fields := baseFields(c.Extra, ItemKindCategory)
	if err := putValue(fields, "name", c.Name); err != nil {
		return nil, err
	}
	putString(fields, "colour", c.Colour)
	putString(fields, "categorystyle", c.CategoryStyle)
	contents := c.Contents
	if contents == nil {
		contents = []ToolboxItem{}
	}
	if err := putValue(fields, "contents", contents); err != nil {
		return nil, err
	}
	putTrue(fields, "hidden", c.Hidden)
	return json.Marshal(fields)
}

// MarshalJSON implements json.Marshaler.
func (d *DynamicCategory) MarshalJSON() ([]byte, error) {
	fields := baseFields(d.Extra, ItemKindCategory)
	if err := putValue(fields, "name", d.Name); err != nil {
		return nil, err
	}
	if err := putValue(fields, "custom", d.Custom); err != nil {
		return nil, err
	}
	putString(fields, "colour", d.Colour)
	putString(fields, "categorystyle", d.CategoryStyle)
	putTrue(fields, "hidden", d.Hidden)
	putTrue(fields, "disabled", d.Disabled)
	return json.Marshal(fields)
}

// MarshalJSON implements json.Marshaler.
func (b *Block) MarshalJSON() ([]byte, error) {
	fields := baseFields(b.Extra, ItemKindBlock)
	if err := putValue(fields, "type", b.Type); err != nil {
		return nil, err
	}
	putTrue(fields, "disabled", b.Disabled)
	if len(b.DisabledReasons) > 0 {
		if err := putValue(fields, "disabledReasons", b.DisabledReasons); err != nil {
			return nil, err
		}
	}
	return json.Marshal(fields)
}

// MarshalJSON implements json.Marshaler.
func (s *Separator) MarshalJSON() ([]byte, error) {
	fields := baseFields(s.Extra, ItemKindSeparator)
	if len(s.Gap) > 0 {
		fields["gap"] = s.Gap
	}
	putTrue(fields, "hidden", s.Hidden)
	return json.Marshal(fields)
}

// MarshalJSON implements json.Marshaler.
func (u *UnknownItem) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("null"), nil
	}
	return u.Raw, nil
}

func baseFields(extra map[string]json.RawMessage, kind string) map[string]json.RawMessage {
	fields := cloneExtra(extra)
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	fields["kind"] = json.RawMessage(`"` + kind + `"`)
	return fields
}

func takeString(fields map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	delete(fields, key)
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	return nil
}

// takeBool accepts both JSON booleans and the "true"/"false" strings Blockly
// writes for category flags.
func takeBool(fields map[string]json.RawMessage, key string, dst *bool) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	delete(fields, key)
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		*dst = b
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("field %s: expected boolean", key)
	}
	*dst = strings.EqualFold(strings.TrimSpace(s), "true")
	return nil
}

func takeValue(fields map[string]json.RawMessage, key string, dst interface{}) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	delete(fields, key)
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	return nil
}

func putValue(fields map[string]json.RawMessage, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fields[key] = data
	return nil
}

func putString(fields map[string]json.RawMessage, key, v string) {
	if v == "" {
		return
	}
	_ = putValue(fields, key, v)
}

func putTrue(fields map[string]json.RawMessage, key string, v bool) {
	if v {
		fields[key] = json.RawMessage("true")
	} else {
		delete(fields, key)
	}
}

func nonEmpty(fields map[string]json.RawMessage) map[string]json.RawMessage {
	if len(fields) == 0 {
		return nil
	}
	return fields
}
