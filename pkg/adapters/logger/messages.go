package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Session
		"Reading %s": "%s を読み込み中",
		"Source: %s %dx%d, %d samples at %.2f fps": "ソース: %s %dx%d, %d サンプル, %.2f fps",
		"Decoded %d frames in %d ms":               "%d フレームを %d ms でデコードしました",
		"Summary written to %s":                    "サマリーを %s に保存しました",
		"Saved %d snapshots to %s":                 "%d 枚のスナップショットを %s に保存しました",
		"Interrupted, shutting down...":            "中断されました。シャットダウン中...",
		"Serving decoders":                         "デコーダーを提供中",
		"Serving metrics on %s":                    "%s でメトリクスを公開中",
		"Peer disconnected":                        "接続先が切断しました",
		"Stopping: %v":                             "停止します: %v",

		// Decoder
		"Initialized %s for %dx%d":                         "%s を %dx%d で初期化しました",
		"Created %s":                                       "%s を作成しました",
		"Falling back to software decoding: %s":            "ソフトウェアデコードに切り替えます: %s",
		"%s cannot decode %s output, retrying in software": "%s は %s 出力をデコードできないため、ソフトウェアで再試行します",
		"Got a picture after %d null outputs":              "%d 回の空出力の後に画像を取得しました",
		"Decoder faulted: %v":                              "デコーダーが故障状態になりました: %v",
		"Decoder failed: %v":                               "デコーダーが失敗しました: %v",
		"Decoder init failed: %v":                          "デコーダーの初期化に失敗しました: %v",

		// Hardware negotiation
		"Denylisted module found for %s: %s":            "%s の拒否リストに該当するモジュール: %s",
		"Ignoring denylisted module %s for %s API":      "%[2]s API の拒否リストモジュール %[1]s を無視します",
		"Hardware decoding denied: modern=%q legacy=%q": "ハードウェアデコードが拒否されました: modern=%q legacy=%q",
		"Failed to list loaded modules: %v":             "読み込み済みモジュールを取得できませんでした: %v",
		"Releasing accelerator: %v":                     "アクセラレーターの解放に失敗しました: %v",
		"Control queue closed, releasing %s in place":   "制御キューが閉じているため、%s をその場で解放します",
		"Clearing denylist caches: %v":                  "拒否リストキャッシュの消去に失敗しました: %v",

		// Link
		"Link lost: %v":                     "リンクが切断されました: %v",
		"Remote decoder failed: %s":         "リモートデコーダーが失敗しました: %s",
		"Unexpected %s message":             "予期しない %s メッセージ",
		"Actor %d constructed twice":        "アクター %d が二重に生成されました",
		"Sending %s to actor %d: %v":        "アクター %[2]d への %[1]s の送信に失敗しました: %[3]v",
		"Skipping message for actor %d: %v": "アクター %d 宛てのメッセージをスキップします: %v",

		// Warnings
		"Dropping frame at %v: %v":                          "%v のフレームを破棄します: %v",
		"Dropping frame: %v":                                "フレームを破棄します: %v",
		"Dropping frame while draining: %v":                 "ドレイン中のフレームを破棄します: %v",
		"Dropping sample at %v: %v":                         "%v のサンプルを破棄します: %v",
		"Closing transform: %v":                             "トランスフォームの終了に失敗しました: %v",
		"Failed to write summary: %v":                       "サマリーの書き込みに失敗しました: %v",
		"Metrics server stopped: %v":                        "メトリクスサーバーが停止しました: %v",
		"Skipping malformed denylist entry %q":              "不正な拒否リスト項目をスキップします: %q",
		"Skipping malformed version %q for %s: %v":          "%[2]s の不正なバージョン %[1]q をスキップします: %[3]v",
		"Skipping denylist entry %s without valid versions": "有効なバージョンのない拒否リスト項目 %s をスキップします",

		// Errors
		"Failed to read source: %v": "ソースを読み込めませんでした: %v",
		"Decoding failed: %v":       "デコードに失敗しました: %v",
		"Reading frame: %v":         "フレームの読み込みに失敗しました: %v",
	})
}
