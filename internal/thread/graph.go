// Package thread はフラットな返信レコードから返信ツリーを再構築し、
// 投稿ごとの平坦化テキストを生成する。
//
// 処理は2段階に分かれる。
//   - Build: 返信集合から隣接構造（ID → 子IDの順序付き集合）と本文ルックアップを作る。
//   - Flatten: ルートから深さ優先（行きがけ順）に辿り、削除済み本文を除いた本文列を返す。
//
// 入力は投稿1件分の返信集合に閉じており、構造体は投稿ごとに作って捨てる。
// 重複ID、親の欠落、自己参照、循環はいずれもエラーにせず構造に反映し、
// Flatten側の訪問済み管理で安全に扱う。
package thread

import (
	"strings"

	"github.com/hitoshi/threadflat/internal/model"
)

// Lookup は正規化済みID → 本文のマップ。
// エントリが存在しないID（投稿自身、親として参照されるだけのID）は本文を出力しない。
type Lookup map[string]string

// Stats はグラフ構築中に検出したデータ品質上の異常の件数。
// いずれも致命的ではなく、ログとメトリクスのために集計する。
type Stats struct {
	Records        int // 処理したレコード数
	DuplicateIDs   int // 同一IDの再出現（ルックアップは後勝ち）
	DuplicateEdges int // 同一の親子ペアの再出現
	SelfEdges      int // 自分自身を親とするレコード
	ForeignParents int // 処理中以外の投稿（t3_）を親とするレコード
}

type edge struct {
	parent string
	child  string
}

// Graph は投稿1件分の返信グラフ。
// 子は到着順を保持した集合として持ち、同一の親子ペアは1度だけ登録する。
type Graph struct {
	submissionID string
	children     map[string][]string
	edges        map[edge]struct{}
	hasParent    map[string]bool
	order        []string
	stats        Stats
}

func newGraph(submissionID string, sizeHint int) *Graph {
	return &Graph{
		submissionID: submissionID,
		children:     make(map[string][]string, sizeHint+1),
		edges:        make(map[edge]struct{}, sizeHint),
		hasParent:    make(map[string]bool, sizeHint+1),
		order:        make([]string, 0, sizeHint+1),
	}
}

// Build は返信集合から返信グラフと本文ルックアップを構築する。
// repliesは型タグ除去後のlink_idがsubmissionIDと一致するレコードである前提で、順序は問わない。
// 失敗することはなく、異常はStatsに集計される。
func Build(replies []model.Reply, submissionID string) (*Graph, Lookup) {
	submissionID = model.StripTypeTag(submissionID)
	g := newGraph(submissionID, len(replies))
	lookup := make(Lookup, len(replies))

	for i := range replies {
		r := &replies[i]
		childID := model.StripTypeTag(r.ID)
		parentID := model.StripTypeTag(r.ParentID)

		g.addEdge(parentID, childID)

		if parentID != submissionID && strings.HasPrefix(r.ParentID, model.SubmissionTag) {
			g.stats.ForeignParents++
		}

		if _, dup := lookup[childID]; dup {
			g.stats.DuplicateIDs++
		}
		lookup[childID] = r.Body
		g.stats.Records++
	}

	return g, lookup
}

func (g *Graph) addNode(id string) {
	if _, ok := g.children[id]; ok {
		return
	}
	g.children[id] = nil
	g.order = append(g.order, id)
}

func (g *Graph) addEdge(parentID, childID string) {
	g.addNode(parentID)
	g.addNode(childID)

	if parentID == childID {
		g.stats.SelfEdges++
	}

	e := edge{parent: parentID, child: childID}
	if _, dup := g.edges[e]; dup {
		g.stats.DuplicateEdges++
	} else {
		g.edges[e] = struct{}{}
		g.children[parentID] = append(g.children[parentID], childID)
	}
	g.hasParent[childID] = true
}

// SubmissionID は構築時に指定された正規化済みの投稿IDを返す。
func (g *Graph) SubmissionID() string {
	return g.submissionID
}

// Roots は一度も子として現れなかったIDを初出順で返す。
// 投稿自身（トップレベル返信がある場合）と、定義レコードが欠けた親IDが含まれる。
func (g *Graph) Roots() []string {
	roots := make([]string, 0, 1)
	for _, id := range g.order {
		if !g.hasParent[id] {
			roots = append(roots, id)
		}
	}
	return roots
}

// Children は指定IDの子を登録順で返す。未登録のIDにはnilを返す。
// 戻り値はグラフ内部のスライスなので変更してはならない。
func (g *Graph) Children(id string) []string {
	return g.children[id]
}

// Has は指定IDがグラフのキーとして存在するかを返す。
func (g *Graph) Has(id string) bool {
	_, ok := g.children[id]
	return ok
}

// IDs は全ノードIDを初出順で返す。
func (g *Graph) IDs() []string {
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	return ids
}

// Len はノード数を返す。
func (g *Graph) Len() int {
	return len(g.order)
}

// Stats は構築中に集計した異常件数を返す。
func (g *Graph) Stats() Stats {
	return g.stats
}
