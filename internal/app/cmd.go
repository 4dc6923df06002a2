package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandExtract は.zstダンプを.jsonlに展開することを示す。
	CommandExtract Command = "extract"
	// CommandLoad はダンプをデータベースに取り込むことを示す。
	CommandLoad Command = "load"
	// CommandThreads は取り込み済みの投稿をスレッド文書に平坦化することを示す。
	CommandThreads Command = "threads"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandServe は読み取りAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandUnknown はサポート外のサブコマンドを示す。
	CommandUnknown Command = ""
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandServe、サポート外のコマンドの場合はCommandUnknownを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "extract":
		return CommandExtract
	case "load":
		return CommandLoad
	case "threads":
		return CommandThreads
	case "migrate":
		return CommandMigrate
	case "serve":
		return CommandServe
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandUnknown
	}
}

// CommandArgs はサブコマンド名を除いた残りの引数（入出力パス）を返す。
func CommandArgs(args []string) []string {
	if len(args) <= 1 {
		return nil
	}
	return args[1:]
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	return `usage: threadflat <command> [args]

commands:
  extract <file|dir>...   .zstダンプを同じ場所の.jsonlに展開する
  load <file|dir>...      .zst/.jsonlダンプをDATABASE_URLのストアに取り込む
  threads [output.jsonl]  投稿をスレッド文書に平坦化する（省略時はデータベースに出力）
  migrate                 データベースマイグレーションを適用する
  serve                   読み取りAPIサーバーを起動する
  healthcheck             /health を確認する`
}
