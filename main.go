package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/templateflow/tfget/pkg/templateflow"
)

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
	stdIn  io.Reader = os.Stdin
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run 执行 CLI 并返回退出码，方便测试。
func run(args []string) int {
	app := &cliApp{}
	cmd, err := newRootCmd(app)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化命令失败: %v\n", err)
		return 1
	}
	cmd.SetArgs(args)
	cmd.SetOut(stdOut)
	cmd.SetErr(stdErr)
	cmd.SetIn(stdIn)

	if err := cmd.Execute(); err != nil {
		var fe *templateflow.FetchError
		if errors.As(err, &fe) {
			return 3
		}
		return 1
	}
	return 0
}
