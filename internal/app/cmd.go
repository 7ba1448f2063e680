package app

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/config"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandSeed はYAMLから組織とオーナーを投入することを示す。
	CommandSeed Command = "seed"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandPortalLink はジョブのポータルリンクを再発行することを示す。
	CommandPortalLink Command = "portal-link"
	// CommandHashPassword はBYPASS_CREDENTIALS用のbcryptハッシュを出力することを示す。
	CommandHashPassword Command = "hash-password"
)

// NewRootCommand はjobdeskのルートコマンドを生成する。
// サブコマンド省略時はserveとして動作する。
func NewRootCommand(w io.Writer) *cobra.Command {
	serve := func(cmd *cobra.Command, args []string) error {
		cfg, err := initWithBanner(w, CommandServe)
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	}

	root := &cobra.Command{
		Use:   "jobdesk",
		Short: "Job tracking API for small contractors",
		Long: `jobdesk serves the owner dashboard API and the client portal.
Owners sign in with a session cookie. Clients reach a single job
through a signed portal link.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.SetOut(w)

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "Start the HTTP API server",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		&cobra.Command{
			Use:   string(CommandWorker),
			Short: "Run periodic cleanup of audit logs and expired portal links",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := initWithBanner(w, CommandWorker)
				if err != nil {
					return err
				}
				return runWorker(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   string(CommandMigrate),
			Short: "Apply pending database migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := initWithBanner(w, CommandMigrate)
				if err != nil {
					return err
				}
				return runMigrate(cfg)
			},
		},
		newSeedCommand(w),
		&cobra.Command{
			Use:   string(CommandHealthcheck),
			Short: "Check the local /health endpoint",
			Args:  cobra.NoArgs,
			// 軽量サブコマンドのため、フル初期化をスキップする
			RunE: func(cmd *cobra.Command, args []string) error {
				port := os.Getenv("SERVER_PORT")
				if port == "" {
					port = "8080"
				}
				return runHealthcheck(port)
			},
		},
		&cobra.Command{
			Use:   string(CommandPortalLink) + " <jobId>",
			Short: "Reissue the client portal link for a job",
			Long:  "Reissue the client portal link for a job. Previously issued links stop working.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := initWithBanner(w, CommandPortalLink)
				if err != nil {
					return err
				}
				return runPortalLink(cmd.Context(), cfg, args[0], cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   string(CommandHashPassword),
			Short: "Read a password from stdin and print its bcrypt hash",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return hashPassword(cmd.InOrStdin(), cmd.OutOrStdout())
			},
		},
	)

	return root
}

func newSeedCommand(w io.Writer) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   string(CommandSeed),
		Short: "Create organizations and owner users from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initWithBanner(w, CommandSeed)
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open seed file: %w", err)
			}
			defer f.Close()
			return runSeed(cmd.Context(), cfg, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the seed YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func initWithBanner(w io.Writer, cmd Command) (*config.Config, error) {
	cfg, err := Init(w)
	if err != nil {
		return nil, fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("log_level", cfg.LogLevel.String()),
	)
	return cfg, nil
}

// hashPassword は1行目をパスワードとして読み、bcryptハッシュを書き出す。
func hashPassword(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("password is empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}
