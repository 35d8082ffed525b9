package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/templateflow/tfget/internal/config"
	"github.com/templateflow/tfget/internal/logging"
	"github.com/templateflow/tfget/pkg/templateflow"
)

const rootUsage = `tfget resolves TemplateFlow templates and fetches their files into a local archive.

The archive lives in $TEMPLATEFLOW_HOME. Files are fetched with DataLad when
$TEMPLATEFLOW_USE_DATALAD is on, and downloaded from the public bucket otherwise.`

// cliApp 保存命令执行期间共享的配置、日志与客户端。
type cliApp struct {
	configPath string
	logLevel   string

	cfg    config.Config
	logger *logrus.Logger
	client *templateflow.Client
}

func newRootCmd(app *cliApp) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "tfget",
		Short: "TemplateFlow archive client",
		Long:  rootUsage,
		// Do not show the Usage page on every raised error
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.init()
		},
	}
	cmd.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", fmt.Sprintf("Config file (overrides $%s)", config.EnvConfig))
	cmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "", fmt.Sprintf("Log level (overrides $%s)", config.EnvLogLevel))

	entities, err := templateflow.Entities()
	if err != nil {
		return nil, err
	}
	cmd.AddCommand(
		newConfigCmd(app),
		newLsCmd(app, entities),
		newGetCmd(app, entities),
		newTemplatesCmd(app, entities),
		newMetadataCmd(app),
		newUpdateCmd(app),
		newSetupCmd(app),
		newWipeCmd(app),
		newVersionCmd(),
	)
	return cmd, nil
}

// init 按 "配置 → 日志 → 客户端" 的顺序准备运行环境。
func (a *cliApp) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.LogLevel = a.logLevel
	}

	logger, err := logging.InitLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	client, err := templateflow.New(
		templateflow.WithConfig(cfg.Cache),
		templateflow.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("初始化客户端失败: %w", err)
	}

	a.cfg = *cfg
	a.logger = logger
	a.client = client
	return nil
}
