// Package cli реализует утилиту администрирования очереди задач ce-admin
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pkgerrors "AnalysisPlatform/pkg/errors"
)

// envPrefix префикс переменных окружения: CE_ADMIN_SERVER, CE_ADMIN_PASSCODE, ...
const envPrefix = "CE_ADMIN"

// app общее состояние команд одного запуска
type app struct {
	v   *viper.Viper
	out io.Writer
}

// NewRootCommand создает корневую команду ce-admin.
// Настройки берутся из флагов, переменных окружения и файла конфигурации в этом порядке.
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:   "ce-admin",
		Short: "ce-admin - управление очередью задач анализа",
		Long: `ce-admin управляет очередью задач анализа через HTTP API:
приостановка воркеров и приема отчетов, отмена задач и просмотр состояния очереди.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.ce-admin.yaml)")
	flags.StringP("server", "s", "http://localhost:9000", "server address")
	flags.String("passcode", "", "system passcode (X-Sonar-Passcode)")
	flags.String("token", "", "bearer token")
	flags.StringP("output", "o", FormatTable, "output format (table, json, yaml)")
	flags.Duration("timeout", 30*time.Second, "request timeout")

	for _, name := range []string{"config", "server", "passcode", "token", "output", "timeout"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		a.commandCmd("pause", "Приостановить захват задач воркерами", "/api/ce/pause"),
		a.commandCmd("resume", "Возобновить захват задач", "/api/ce/resume"),
		a.commandCmd("submit-pause", "Запретить постановку новых задач", "/api/ce/submit_pause"),
		a.commandCmd("submit-resume", "Разрешить постановку новых задач", "/api/ce/submit_resume"),
		a.getCmd("status", "Показать состояние очереди", "/api/ce/info"),
		a.getCmd("worker-count", "Показать число воркеров узла", "/api/ce/worker_count"),
		a.cancelCmd(),
		a.cancelAllCmd(),
	)
	return root
}

// Execute запускает ce-admin с аргументами командной строки
func Execute(ctx context.Context) error {
	root := NewRootCommand(os.Stdout)
	cmd, err := root.ExecuteContextC(ctx)
	return handleError(err, cmd)
}

func (a *app) initConfig() error {
	if cfgFile := a.v.GetString("config"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(home)
		}
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".ce-admin")
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || a.v.GetString("config") == "" {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func (a *app) client() *Client {
	return NewClient(
		a.v.GetString("server"),
		a.v.GetString("passcode"),
		a.v.GetString("token"),
		a.v.GetDuration("timeout"),
	)
}

func (a *app) print(data map[string]interface{}) error {
	return printResult(a.out, a.v.GetString("output"), data)
}

// commandCmd команда POST без параметров и тела ответа
func (a *app) commandCmd(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().Post(cmd.Context(), path, nil, nil); err != nil {
				return err
			}
			return a.print(map[string]interface{}{"status": "ok", "command": use})
		},
	}
}

func (a *app) getCmd(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result map[string]interface{}
			if err := a.client().Get(cmd.Context(), path, nil, &result); err != nil {
				return err
			}
			return a.print(result)
		},
	}
}

func (a *app) cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Отменить задачу в очереди",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Task map[string]interface{} `json:"task"`
			}
			params := url.Values{"id": {args[0]}}
			if err := a.client().Post(cmd.Context(), "/api/ce/cancel", params, &result); err != nil {
				return err
			}
			if result.Task == nil {
				return a.print(map[string]interface{}{"id": args[0], "status": "not found"})
			}
			return a.print(result.Task)
		},
	}
}

func (a *app) cancelAllCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "cancel-all",
		Short: "Отменить все задачи в очереди",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return pkgerrors.New(pkgerrors.ErrValidation, "cancel-all requires --yes")
			}
			var result map[string]interface{}
			if err := a.client().Post(cmd.Context(), "/api/ce/cancel_all", nil, &result); err != nil {
				return err
			}
			return a.print(result)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm cancellation of every pending task")
	return cmd
}

// handleError приводит ошибку к сообщению для пользователя
func handleError(err error, cmd *cobra.Command) error {
	if err == nil {
		return nil
	}

	var appErr *pkgerrors.Error
	if !errors.As(err, &appErr) {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	return fmt.Errorf("%s: %s", cmd.Name(), appErr.GetUserMessage())
}
