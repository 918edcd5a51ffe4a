package main

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Application
		"Decode video in a separate process and hand frames back": "別プロセスで動画をデコードしてフレームを受け取る",
		"YAML configuration file":                                 "YAML 設定ファイル",
		"Log level (debug, info, warn, error)":                    "ログレベル（debug, info, warn, error）",
		"Suppress all log output":                                 "全てのログ出力を抑制",
		"Error: %v":                                               "エラー: %v",

		// Commands
		"Decode an MP4 file and report the frames":                "MP4 ファイルをデコードしてフレームを報告",
		"Run decoders for a parent process over stdin and stdout": "標準入出力経由で親プロセスのデコーダーを実行",
		"Inspect module denylists":                                "モジュール拒否リストを調べる",
		"Parse a denylist and look for listed modules":            "拒否リストを解析し、該当モジュールを探す",
		"Show version information":                                "バージョン情報を表示",
		"remotevideo version %s (%s/%s)":                          "remotevideo バージョン %s (%s/%s)",

		// Decode flags
		"Decode in a separate serve process":                 "別の serve プロセスでデコード",
		"Directory for PNG snapshots of decoded frames":      "デコード済みフレームの PNG スナップショットの保存先",
		"Save every Nth frame as a snapshot":                 "N フレームごとにスナップショットを保存",
		"Maximum snapshot width in pixels":                   "スナップショットの最大幅（ピクセル）",
		"Output execution summary to file (Markdown format)": "実行サマリーをファイルに出力（Markdown形式）",
		"Path to the ffmpeg executable":                      "ffmpeg 実行ファイルのパス",
		"Directory for shared-memory frame regions":          "共有メモリ領域のディレクトリ",
		"Never use a hardware decoder":                       "ハードウェアデコーダーを使用しない",
		"Ask the decoder for low-latency output":             "デコーダーに低遅延出力を要求",

		// Serve flags
		"Serve Prometheus metrics on this address (e.g., :9464)": "このアドレスで Prometheus メトリクスを公開（例: :9464）",

		// Denylist
		"Denylist, e.g. \"libfoo.so: 1.2.3.4; libbar.so: 10.0.0.1\"": "拒否リスト（例: \"libfoo.so: 1.2.3.4; libbar.so: 10.0.0.1\"）",
		"No valid denylist entries":                                  "有効な拒否リスト項目がありません",
		"Denylisted module present: %s":                              "拒否リストのモジュールが存在します: %s",
		"No denylisted module is present":                            "拒否リストのモジュールは存在しません",

		// Errors
		"An MP4 file argument is required": "MP4 ファイル引数が必要です",

		// Summary content
		"Decode Summary":      "デコードサマリー",
		"Source":              "ソース",
		"Decoder":             "デコーダー",
		"Output":              "出力",
		"Telemetry":           "テレメトリー",
		"Errors":              "エラー",
		"Item":                "項目",
		"Value":               "値",
		"Generated at":        "生成日時",
		"File":                "ファイル",
		"Codec":               "コーデック",
		"Coded Size":          "符号化サイズ",
		"Frame Rate":          "フレームレート",
		"Duration":            "再生時間",
		"Samples":             "サンプル数",
		"Compressed Size":     "圧縮サイズ",
		"Mode":                "モード",
		"Software":            "ソフトウェア",
		"Hardware":            "ハードウェア",
		"Acceleration":        "アクセラレーション",
		"Denylisted (modern)": "拒否リスト該当（modern）",
		"Denylisted (legacy)": "拒否リスト該当（legacy）",
		"Frames":              "フレーム数",
		"Keyframes":           "キーフレーム数",
		"GPU Textures":        "GPU テクスチャ数",
		"Pixel Format":        "ピクセル形式",
		"Time Range":          "時間範囲",
		"Snapshots":           "スナップショット数",
		"Elapsed":             "所要時間",
		"Decode Speed":        "デコード速度",
		"Event":               "イベント",
		"Count":               "回数",
		"Total":               "合計",
	})
}
