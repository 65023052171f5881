package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"audiodev-manager/internal/adapter/primary/tui"
	"audiodev-manager/internal/adapter/primary/web"
	"audiodev-manager/internal/adapter/secondary/audio"
	"audiodev-manager/internal/adapter/secondary/discovery"
	"audiodev-manager/internal/adapter/secondary/repository"
	"audiodev-manager/internal/domain"
	"audiodev-manager/internal/logging"
	"audiodev-manager/internal/usecase"
)

var (
	cfgPath     string
	verbosity   int
	backendFlag string

	// sessionEngine is shared by every command typed into the interactive shell.
	sessionEngine usecase.AudioManagerUseCase
)

// NewRootCmd creates the root CLI command.
// This is the primary adapter that translates CLI inputs to use case calls.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "audiodev-manager",
		Short:        "出力オーディオデバイスの一覧・切替・音量監視を行うCLI/Webサーバー",
		Long:         "デフォルト出力デバイスの切替、音量/ミュート操作、音量変化の監視を CLI・TUI・Web API から行うツール",
		SilenceUsage: true,
	}

	defaultCfg := repository.DefaultPath()
	cmd.PersistentFlags().StringVar(&cfgPath, "config", defaultCfg, "設定ファイルのパス")
	cmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "ロギングを詳細化 (-v, -vv, ... 最大4回)")
	cmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "バックエンドを上書き (auto|pulse|applescript|memory)")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logging.SetVerbosity(verbosity)
	}

	cmd.AddCommand(
		newDevicesCmd(),
		newDefaultCmd(),
		newSwitchCmd(),
		newVolumeCmd(),
		newMuteCmd(),
		newCustomPropertyCmd(),
		newMonitorCmd(),
		newWatchCmd(),
		newServeCmd(),
		newConfigCmd(),
		newShellCmd(),
	)

	return cmd
}

// loadSettings reads the config file, applies --backend and picks up log_level
// when no -v flag was given.
func loadSettings() (domain.Settings, error) {
	repo, err := repository.NewFileRepository(cfgPath)
	if err != nil {
		return domain.Settings{}, err
	}
	settings, err := repo.Load()
	if err != nil {
		return domain.Settings{}, err
	}
	if backendFlag != "" {
		settings.Backend = backendFlag
	}
	if err := settings.Validate(); err != nil {
		return domain.Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	if verbosity == 0 && settings.LogLevel != "" {
		if _, count, err := logging.ParseLevel(settings.LogLevel); err == nil {
			logging.SetVerbosity(count)
		} else {
			logging.Warnf("config: %v", err)
		}
	}
	return settings, nil
}

// buildEngine opens the configured backend. A platform without a backend gets the
// stub engine, whose operations all report domain.ErrPlatformUnsupported.
func buildEngine() (usecase.AudioManagerUseCase, func(), error) {
	if sessionEngine != nil {
		return sessionEngine, func() {}, nil
	}
	settings, err := loadSettings()
	if err != nil {
		return nil, nil, err
	}
	return openEngine(settings)
}

func openEngine(settings domain.Settings) (usecase.AudioManagerUseCase, func(), error) {
	subsystem, err := audio.Open(settings)
	if errors.Is(err, domain.ErrPlatformUnsupported) {
		logging.Warnf("no audio backend: %v", err)
		return usecase.NewUnsupportedUseCase(), func() {}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	logging.Debugf("backend %q opened", settings.Backend)
	closer := func() {
		if err := subsystem.Close(); err != nil {
			logging.Warnf("close backend: %v", err)
		}
	}
	return usecase.NewAudioManagerUseCase(subsystem), closer, nil
}

// withEngine runs fn against a freshly opened engine and releases it afterwards.
func withEngine(fn func(usecase.AudioManagerUseCase) error) error {
	engine, release, err := buildEngine()
	if err != nil {
		return err
	}
	defer release()
	return fn(engine)
}

// parseVolume accepts a unit-scale value ("0.7") or a percentage ("70%").
func parseVolume(s string) (float64, error) {
	volumes := domain.NewVolumeService()
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(pct))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", domain.ErrInvalidVolume, s)
		}
		if n < 0 || n > 100 {
			return 0, fmt.Errorf("%w: %q", domain.ErrInvalidVolume, s)
		}
		return volumes.FromPercent(n), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidVolume, s)
	}
	return v, volumes.Validate(v)
}

func newMonitorCmd() *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "音量変化イベントを JSON Lines で出力 (Ctrl+C で終了)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(engine usecase.AudioManagerUseCase) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}

				out := json.NewEncoder(cmd.OutOrStdout())
				sub, err := engine.StartVolumeMonitoring(func(ev domain.VolumeChangeEvent) {
					if err := out.Encode(ev); err != nil {
						logging.Warnf("write event: %v", err)
					}
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "監視中 (%s): %s\n", sub.ID, strings.Join(sub.Devices, ", "))

				<-ctx.Done()
				return engine.StopVolumeMonitoring()
			})
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "指定時間で監視を終了 例:30s (0 で無期限)")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var logFile string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "デバイス一覧と音量をTUIで表示・操作",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Log lines would corrupt the alternate screen.
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err != nil {
					return err
				}
				defer f.Close()
				logging.SetOutput(f)
			} else {
				logging.SetOutput(io.Discard)
			}
			defer logging.SetOutput(os.Stderr)

			return withEngine(func(engine usecase.AudioManagerUseCase) error {
				return tui.Run(engine)
			})
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "TUI表示中のログ出力先ファイル")
	return cmd
}

func newServeCmd() *cobra.Command {
	var (
		addr      string
		advertise bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Web UI と REST/WebSocket API を起動",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				settings.Addr = addr
			}
			if cmd.Flags().Changed("advertise") {
				settings.Advertise = advertise
			}

			engine, release, err := openEngine(settings)
			if err != nil {
				return err
			}
			defer release()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			srv := web.NewServer(engine, settings.Addr)
			fmt.Printf("Audio Device Manager UI running at http://%s\n", settings.Addr)
			logging.Infof("Audio Device Manager UI: http://%s", settings.Addr)

			if settings.Advertise {
				advertiser, err := newAdvertiser(settings)
				if err != nil {
					logging.Warnf("mDNS disabled: %v", err)
				} else if err := advertiser.Advertise(); err != nil {
					logging.Warnf("mDNS disabled: %v", err)
				} else {
					defer func() { _ = advertiser.Shutdown() }()
				}
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logging.Warnf("shutdown: %v", err)
				}
			}()

			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", domain.DefaultSettings().Addr, "HTTPサーバーのアドレス:ポート")
	cmd.Flags().BoolVar(&advertise, "advertise", false, "mDNS (_audiodev._tcp) でサーバーを告知")
	return cmd
}

func newAdvertiser(settings domain.Settings) (*discovery.Advertiser, error) {
	host, portStr, err := net.SplitHostPort(settings.Addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return discovery.NewAdvertiser(discovery.Config{
		ServiceName: settings.ServiceName,
		Host:        host,
		Port:        port,
	}), nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "設定の取得・更新を行うサブコマンド",
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "現在の設定(JSON)を表示",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := repository.NewFileRepository(cfgPath)
			if err != nil {
				return err
			}
			settings, err := repo.Load()
			if err != nil {
				return err
			}

			display := map[string]interface{}{
				"backend":        settings.Backend,
				"addr":           settings.Addr,
				"logLevel":       settings.LogLevel,
				"pollIntervalMs": settings.PollInterval.Milliseconds(),
				"advertise":      settings.Advertise,
				"serviceName":    settings.ServiceName,
			}
			if len(settings.VirtualDevices) > 0 {
				display["virtualDevices"] = settings.VirtualDevices
			}

			out, _ := json.MarshalIndent(display, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var (
		backend      string
		addr         string
		logLevel     string
		pollInterval time.Duration
		advertise    string
		serviceName  string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "設定を書き換え",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := repository.NewFileRepository(cfgPath)
			if err != nil {
				return err
			}
			settings, err := repo.Load()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("backend") {
				settings.Backend = backend
			}
			if cmd.Flags().Changed("addr") {
				settings.Addr = addr
			}
			if cmd.Flags().Changed("log-level") {
				if _, _, err := logging.ParseLevel(logLevel); err != nil {
					return err
				}
				settings.LogLevel = logLevel
			}
			if cmd.Flags().Changed("poll-interval") {
				settings.PollInterval = pollInterval
			}
			if cmd.Flags().Changed("advertise") {
				switch advertise {
				case "true":
					settings.Advertise = true
				case "false":
					settings.Advertise = false
				default:
					return errors.New("--advertise には true/false を指定してください")
				}
			}
			if cmd.Flags().Changed("service-name") {
				settings.ServiceName = serviceName
			}

			if err := settings.Validate(); err != nil {
				return err
			}
			if err := repo.Save(settings); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "保存しました: backend=%s addr=%s log=%s poll=%s advertise=%t\n",
				settings.Backend, settings.Addr, settings.LogLevel, settings.PollInterval, settings.Advertise)
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", domain.BackendAuto, "auto|pulse|applescript|memory")
	cmd.Flags().StringVar(&addr, "addr", domain.DefaultSettings().Addr, "HTTPサーバーのアドレス:ポート")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "error|warn|info|debug|trace")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", domain.DefaultSettings().PollInterval, "AppleScriptバックエンドの監視間隔 例:250ms")
	cmd.Flags().StringVar(&advertise, "advertise", "", "true/false を指定すると serve 時の mDNS 告知 ON/OFF")
	cmd.Flags().StringVar(&serviceName, "service-name", domain.DefaultSettings().ServiceName, "mDNS のインスタンス名")
	return cmd
}

func newShellCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Cobraサブコマンドを対話的に叩けるシェルを起動",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			engine, release, err := openEngine(settings)
			if err != nil {
				return err
			}
			defer release()

			sessionEngine = engine
			defer func() { sessionEngine = nil }()
			return runInteractiveShell(prompt)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "audiodev> ", "シェルのプロンプト文字列")
	return cmd
}

func runInteractiveShell(prompt string) error {
	historyFile := filepath.Join(os.TempDir(), "audiodev-manager-shell.history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	sessionVerbosity := verbosity
	fmt.Println("対話型シェルを開始します。'help' で使い方、'exit' で終了。")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Println()
			continue
		}
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch line {
		case "exit", "quit":
			fmt.Println("Bye!")
			return nil
		case "help":
			printShellHelp()
			continue
		}
		tokens, err := shlex.Split(line)
		if err != nil {
			fmt.Printf("Parse error: %v\n", err)
			continue
		}
		if len(tokens) == 0 {
			continue
		}
		switch tokens[0] {
		case "log":
			if err := handleShellLog(tokens[1:], &sessionVerbosity); err != nil {
				fmt.Printf("log: %v\n", err)
			}
			continue
		case "shell":
			fmt.Println("すでにシェル内です。他のコマンドを入力するか 'exit' で終了してください。")
			continue
		case "serve", "watch":
			fmt.Printf("%s はシェル外で実行してください。\n", tokens[0])
			continue
		}

		verbosity = sessionVerbosity
		if err := executeArgs(tokens); err != nil {
			fmt.Printf("command error: %v\n", err)
		}
		sessionVerbosity = verbosity
	}
}

func executeArgs(args []string) error {
	if len(args) == 0 {
		return nil
	}
	root := NewRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func handleShellLog(args []string, sessionVerbosity *int) error {
	fs := pflag.NewFlagSet("log", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var vcount int
	var level string
	var show bool
	fs.CountVarP(&vcount, "verbose", "v", "Increase verbosity (-v... up to 4)")
	fs.StringVar(&level, "level", "", "指定レベル(error|warn|info|debug|trace)")
	fs.BoolVarP(&show, "show", "s", false, "現在のレベルを表示")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case show && vcount == 0 && level == "":
		fmt.Printf("log level: %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
		return nil
	case level != "":
		_, count, err := logging.ParseLevel(level)
		if err != nil {
			return err
		}
		*sessionVerbosity = count
	case vcount > 0:
		*sessionVerbosity = vcount
	default:
		fmt.Printf("log level: %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
		return nil
	}

	verbosity = *sessionVerbosity
	logging.SetVerbosity(*sessionVerbosity)
	fmt.Printf("log level set to %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
	return nil
}

func printShellHelp() {
	fmt.Println(`利用可能な入力例:
  devices                         # 出力デバイス一覧 (* がデフォルト)
  default                         # 現在のデフォルト出力デバイス
  switch "MacBook Pro Speakers"   # デフォルト出力を切替
  volume get Speakers             # 音量を表示 (0.0-1.0)
  volume set Speakers 70%         # 音量を設定 (0.7 でも可)
  mute set Speakers true          # ミュート
  custom-property set Loopback x  # 仮想デバイスの先頭プロパティを書き換え
  monitor --duration 30s          # 音量変化を30秒間監視
  config get                      # 設定を確認
  log -vv                         # ログ出力を詳細化
  log --show                      # 現在のログレベルを確認
  exit / quit                     # シェル終了`)
}
