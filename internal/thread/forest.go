package thread

import "github.com/hitoshi/threadflat/internal/model"

// Node は返信ツリー（フォレスト）の1ノード。
type Node struct {
	ID       string  `json:"id"`
	Body     string  `json:"body,omitempty"`
	Removed  bool    `json:"removed,omitempty"`
	Missing  bool    `json:"missing,omitempty"` // ルックアップに本文がないノード（投稿自身、欠落した親）
	Children []*Node `json:"children,omitempty"`
}

type forestFrame struct {
	id     string
	parent *Node
}

// Forest はrootsを根とする返信フォレストを構築する。
// 訪問規則はFlattenと同じで、複数の親から到達できるIDは最初に到達した親の下にだけ置かれる。
// 明示的なスタックで構築するため、深いスレッドでもコールスタックを消費しない。
func Forest(g *Graph, lookup Lookup, roots []string) []*Node {
	forest := make([]*Node, 0, len(roots))
	visited := make(map[string]struct{}, g.Len())

	stack := make([]forestFrame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, forestFrame{id: roots[i]})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[f.id]; seen {
			continue
		}
		visited[f.id] = struct{}{}

		n := &Node{ID: f.id}
		if body, ok := lookup[f.id]; ok {
			if body == model.RemovedBody {
				n.Removed = true
			} else {
				n.Body = body
			}
		} else {
			n.Missing = true
		}

		if f.parent == nil {
			forest = append(forest, n)
		} else {
			f.parent.Children = append(f.parent.Children, n)
		}

		children := g.Children(f.id)
		for i := len(children) - 1; i >= 0; i-- {
			if _, seen := visited[children[i]]; !seen {
				stack = append(stack, forestFrame{id: children[i], parent: n})
			}
		}
	}

	return forest
}
