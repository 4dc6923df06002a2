package thread

import "github.com/hitoshi/threadflat/internal/model"

// Result は投稿1件分の再構築結果。
type Result struct {
	Document  string
	Flattened []string
	Roots     []string
	Stats     Stats
}

// Assemble は投稿と返信集合からBuild、Flatten、Documentを順に実行する。
// keepがnilの場合はKeepBodyを使う。
func Assemble(sub *model.Submission, replies []model.Reply, keep KeepFunc) *Result {
	g, lookup := Build(replies, sub.ID)
	roots := g.Roots()
	flattened := FlattenFunc(g, lookup, roots, keep)

	return &Result{
		Document:  Document(sub, flattened, len(replies) > 0),
		Flattened: flattened,
		Roots:     roots,
		Stats:     g.Stats(),
	}
}
