package store

import (
	"fmt"

	"github.com/emicklei/dot"
)

// RenderDot renders a tree (as returned by Tx.Tree) as a graphviz digraph,
// one node per revision, edges from parent to child, the active revision
// (if any) highlighted. Used by the "log --dot" debug output (SPEC_FULL §12).
func RenderDot(recordID string, rows []Row, activeKey int64) string {
	g := dot.NewGraph(dot.Directed)
	g.Attr("label", recordID)
	nodes := make(map[int64]dot.Node)
	for _, r := range rows {
		n := g.Node(fmt.Sprintf("k%d", r.Key))
		n.Attr("label", fmt.Sprintf("#%x\n%s", r.Key, r.Variant))
		if r.Key == activeKey {
			n.Attr("style", "filled")
			n.Attr("fillcolor", "lightgrey")
		}
		nodes[r.Key] = n
	}
	for _, r := range rows {
		if r.ParentKey == nil {
			continue
		}
		if parent, ok := nodes[*r.ParentKey]; ok {
			g.Edge(parent, nodes[r.Key], "")
		}
	}
	return g.String()
}
