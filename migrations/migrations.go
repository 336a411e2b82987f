// Package migrations はデータベーススキーマのSQLファイルを埋め込んで提供する。
// ファイル名のフォーマット: {version}_{name}.sql
package migrations

import "embed"

// FS は埋め込まれたマイグレーションファイル。
//
//go:embed *.sql
var FS embed.FS
