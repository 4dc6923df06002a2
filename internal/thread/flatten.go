package thread

import (
	"strings"

	"github.com/hitoshi/threadflat/internal/model"
)

// KeepFunc は本文を出力に含めるかを判定する。
type KeepFunc func(body string) bool

// KeepBody は削除済みセンチネル "[removed]" 以外の本文を残すデフォルトの判定。
func KeepBody(body string) bool {
	return body != model.RemovedBody
}

// SkipBodies は指定した本文（完全一致）を除外する判定を返す。
// "[removed]" は常に除外対象に含まれる。
func SkipBodies(bodies ...string) KeepFunc {
	skip := make(map[string]struct{}, len(bodies)+1)
	skip[model.RemovedBody] = struct{}{}
	for _, b := range bodies {
		skip[b] = struct{}{}
	}
	return func(body string) bool {
		_, ok := skip[body]
		return !ok
	}
}

// Flatten はrootsから順に深さ優先（行きがけ順）でグラフを辿り、残すべき本文を順に返す。
// 本文が "[removed]" のノードとルックアップにないノードは出力しないが、子は辿る。
// rootsが空の場合は空のスライスを返す。
func Flatten(g *Graph, lookup Lookup, roots []string) []string {
	return FlattenFunc(g, lookup, roots, KeepBody)
}

// FlattenFunc はkeepで本文の採否を判定するFlatten。
//
// 走査はヒープ上の明示的なスタックで行うため、深さはコールスタックではなくメモリ量で制限される。
// 訪問済み集合は呼び出し1回を通して共有し、循環・重複辺・複数の親から到達できるIDでも
// 同じIDに2度入ることはない。
func FlattenFunc(g *Graph, lookup Lookup, roots []string, keep KeepFunc) []string {
	out := make([]string, 0, len(lookup))
	if len(roots) == 0 {
		return out
	}
	if keep == nil {
		keep = KeepBody
	}

	visited := make(map[string]struct{}, g.Len())
	stack := make([]string, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[n]; seen {
			continue
		}
		visited[n] = struct{}{}

		if body, ok := lookup[n]; ok && keep(body) {
			out = append(out, body)
		}

		// 逆順に積んで、取り出し順を子の登録順に揃える
		children := g.Children(n)
		for i := len(children) - 1; i >= 0; i-- {
			if _, seen := visited[children[i]]; !seen {
				stack = append(stack, children[i])
			}
		}
	}

	return out
}

// Document は投稿のタイトル、本文、平坦化した返信を改行で連結した文書を返す。
// 返信セグメントはhasRepliesがfalse（返信集合が空）の場合だけ省略する。
// 返信がすべて削除済みでflattenedが空の場合は、空の返信セグメントとして末尾に改行が付く。
func Document(sub *model.Submission, flattened []string, hasReplies bool) string {
	parts := []string{sub.Title, sub.SelfText}
	if hasReplies {
		parts = append(parts, strings.Join(flattened, "\n"))
	}
	return strings.Join(parts, "\n")
}
