package app

import "strings"

// Command は prismworlds バイナリのサブコマンド。
type Command string

const (
	// CommandServe はセッションストアを起動し、ゲート付きのルートとAPIを配信する。
	CommandServe Command = "serve"
	// CommandMigrate は user_profiles、students、teachers のスキーマを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの /health を叩いて終了コードで返す。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は最初の引数をサブコマンドとして解釈する。大文字小文字は区別しない。
// 未指定や未知の値はコンテナの既定動作に合わせてCommandServeとする。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[strings.ToLower(strings.TrimSpace(args[0]))]; ok {
		return cmd
	}
	return CommandServe
}
