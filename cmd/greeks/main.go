// Command greeks 计算欧式期权的 Black-Scholes 希腊字母，或以 HTTP 服务方式运行。
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/wyfcoding/greeks/config"
)

// version 由 -ldflags "-X main.version=..." 注入。
var version = "dev"

const (
	exitConfig  = 1
	exitInvalid = 2
)

func main() {
	err := newApp(os.Stdout, os.Stderr).Run(os.Args)
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		os.Exit(ec.ExitCode())
	}
	os.Exit(exitConfig)
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "greeks"
	app.Version = version
	app.Usage = "compute Black-Scholes Greeks for a European option"
	app.Writer = stdout
	app.ErrWriter = stderr
	// 退出码由 main 统一处理，便于测试。
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Flags = append([]cli.Flag{&cli.StringFlag{
		Name:    flagConfig,
		Aliases: []string{"c"},
		Usage:   "path to a TOML config file",
		EnvVars: []string{"GREEKS_CONFIG"},
	}}, optionFlags()...)
	app.Action = computeAction
	app.Commands = []*cli.Command{serveCommand}
	return app
}

func loadConfig(c *cli.Context) (*config.Loader, *config.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.Load(c.String(flagConfig))
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), exitConfig)
	}
	return loader, cfg, nil
}
