package api

import (
	"catalog/repricer/internal/category"
)

type NodeResponse struct {
	Name     string              `json:"name"`
	Path     string              `json:"path"`
	Label    string              `json:"label"`
	Count    int                 `json:"count"`
	State    category.CheckState `json:"state"`
	Children []NodeResponse      `json:"children"`
}

type TreeResponse struct {
	Nodes    []NodeResponse `json:"nodes"`
	Selected []string       `json:"selected"`
}

func newTreeResponse(sel *category.Selection) TreeResponse {
	var convert func(nodes []*category.Node) []NodeResponse
	convert = func(nodes []*category.Node) []NodeResponse {
		out := make([]NodeResponse, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, NodeResponse{
				Name:     n.Name,
				Path:     n.Path,
				Label:    n.Label(),
				Count:    n.Count,
				State:    sel.State(n.Path),
				Children: convert(n.SortedChildren()),
			})
		}
		return out
	}

	return TreeResponse{
		Nodes:    convert(sel.Tree().Roots()),
		Selected: sel.Selected(),
	}
}
