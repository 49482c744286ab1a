package main

import (
	"github.com/bitechdev/VirtualSpec/pkg/virtualspec"
)

// renderOne projects a guarded instance through a serializer. Every read goes
// through the guard, so a missing declaration or an unplanned access fails
// loudly instead of issuing a lazy query.
func renderOne(g *virtualspec.GuardedInstance, s *virtualspec.Serializer) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(s.ReadableFields()))
	for _, f := range s.ReadableFields() {
		nested, ok := f.(*virtualspec.NestedField)
		if ok && nested.Many() {
			children, err := g.AttrSlice(f.Source())
			if err != nil {
				return nil, err
			}
			rows := make([]map[string]interface{}, 0, len(children))
			for _, child := range children {
				row, err := renderOne(child, nested.Child())
				if err != nil {
					return nil, err
				}
				rows = append(rows, row)
			}
			out[f.Name()] = rows
			continue
		}

		value, err := g.Attr(f.Source())
		if err != nil {
			return nil, err
		}
		if ok {
			child, isGuarded := value.(*virtualspec.GuardedInstance)
			if !isGuarded {
				out[f.Name()] = nil
				continue
			}
			row, err := renderOne(child, nested.Child())
			if err != nil {
				return nil, err
			}
			out[f.Name()] = row
			continue
		}
		out[f.Name()] = value
	}
	return out, nil
}

// renderMany projects a guarded result set.
func renderMany(guarded []*virtualspec.GuardedInstance, s *virtualspec.Serializer) ([]map[string]interface{}, error) {
	rows := make([]map[string]interface{}, 0, len(guarded))
	for _, g := range guarded {
		row, err := renderOne(g, s)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
