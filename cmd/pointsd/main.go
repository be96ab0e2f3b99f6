package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/communitypoints/internal/catalog"
	"github.com/MarkoPoloResearchLab/communitypoints/internal/daemon"
	"github.com/MarkoPoloResearchLab/communitypoints/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/communitypoints/internal/logging"
	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagEnvFile           = "env-file"
	flagDatabaseURL       = "database-url"
	flagHTTPListenAddr    = "http-listen-addr"
	flagGRPCListenAddr    = "grpc-listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagSessionSigningKey = "session-signing-key"
	flagSessionIssuer     = "session-issuer"
	flagSessionCookie     = "session-cookie-name"
	flagTokenSigningKey   = "token-signing-key"
	flagTokenIssuer       = "token-issuer"
	flagAdminIDs          = "admin-ids"
	flagAdminRole         = "admin-role"
	flagCatalogFile       = "catalog-file"
	flagTimeZone          = "time-zone"
	flagDefaultCapacity   = "default-capacity"
	flagCoworkingCost     = "coworking-cost"
	flagWeeklyAllowance   = "weekly-allowance"
	flagRetryAttempts     = "retry-attempts"
	flagRequestTimeout    = "request-timeout"
	flagLogLevel          = "log-level"
	flagLogFormat         = "log-format"
	flagLogFile           = "log-file"
	flagGormLogLevel      = "gorm-log-level"
	flagRepair            = "repair"
	flagMember            = "member"
	flagDisplayName       = "name"
	flagRoles             = "roles"
	flagTTL               = "ttl"
	envPrefix             = "POINTSD"
	defaultEnvFile        = ".env"
	defaultTokenTTL       = 24 * time.Hour
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pointsd: %v\n", err)
		os.Exit(1)
	}
}

type commandState struct {
	cfg daemon.Config
}

func newRootCommand() *cobra.Command {
	state := &commandState{}
	serve := func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return state.withLogger(func(logger *zap.Logger) error {
			return daemon.Run(ctx, state.cfg, logger)
		})
	}
	rootCmd := &cobra.Command{
		Use:           "pointsd",
		Short:         "Community points ledger, coworking and task board server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, &state.cfg)
		},
		RunE: serve,
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagEnvFile, defaultEnvFile, "dotenv file loaded before reading the environment (missing file is ignored)")
	flags.String(flagDatabaseURL, "", "postgres:// URL, sqlite:// URL or SQLite file path")
	flags.String(flagHTTPListenAddr, "", "HTTP listen address")
	flags.String(flagGRPCListenAddr, "", `gRPC listen address ("off" disables gRPC)`)
	flags.String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	flags.String(flagSessionSigningKey, "", "TAuth session JWT signing key (required)")
	flags.String(flagSessionIssuer, "", "expected session JWT issuer")
	flags.String(flagSessionCookie, "", "session cookie name")
	flags.String(flagTokenSigningKey, "", "gRPC bearer token signing key (gRPC stays off when empty)")
	flags.String(flagTokenIssuer, "", "gRPC bearer token issuer")
	flags.String(flagAdminIDs, "", "comma-separated member ids with admin rights")
	flags.String(flagAdminRole, "", "session role that grants admin rights")
	flags.String(flagCatalogFile, "", "YAML rewards and rate card applied at startup")
	flags.String(flagTimeZone, "", "IANA time zone of the community calendar")
	flags.Int(flagDefaultCapacity, 0, "coworking seats per day without an override")
	flags.Int64(flagCoworkingCost, 0, "points charged per coworking day")
	flags.Int64(flagWeeklyAllowance, 0, "default weekly award allowance per admin")
	flags.Int(flagRetryAttempts, 0, "attempts per transaction on transient conflicts")
	flags.Duration(flagRequestTimeout, 0, "per-request timeout (e.g. 5s)")
	flags.String(flagLogLevel, "", "log level: debug, info, warn, error")
	flags.String(flagLogFormat, "", "log format: json or console")
	flags.String(flagLogFile, "", "optional rotated log file")
	flags.String(flagGormLogLevel, "", "GORM log level: silent, error, warn, info")

	rootCmd.AddCommand(
		&cobra.Command{Use: "serve", Short: "Serve HTTP and gRPC (default)", Args: cobra.NoArgs, RunE: serve},
		newMigrateCommand(state),
		newReconcileCommand(state),
		newTokenCommand(state),
	)
	return rootCmd
}

func newMigrateCommand(state *commandState) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withLogger(func(logger *zap.Logger) error {
				version, err := daemon.Migrate(cmd.Context(), state.cfg, logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
				return nil
			})
		},
	}
}

func newReconcileCommand(state *commandState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Replay every ledger against the cached balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repair, err := cmd.Flags().GetBool(flagRepair)
			if err != nil {
				return err
			}
			return state.withLogger(func(logger *zap.Logger) error {
				return runReconcile(cmd, state.cfg, logger, repair)
			})
		},
	}
	cmd.Flags().Bool(flagRepair, false, "overwrite drifted cached balances with the replayed totals")
	return cmd
}

func runReconcile(cmd *cobra.Command, cfg daemon.Config, logger *zap.Logger, repair bool) error {
	runtime, err := daemon.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = runtime.Close() }()
	systemCaller, err := points.NewCaller(catalog.SystemMemberID, "System", true)
	if err != nil {
		return err
	}
	drifts, err := runtime.Engine.ReconcileBalances(cmd.Context(), systemCaller, repair)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, drift := range drifts {
		fmt.Fprintf(out, "%s cached=%d replayed=%d repaired=%t\n",
			drift.MemberID, drift.Cached.Balance, drift.Replayed.Balance, drift.Repaired)
	}
	fmt.Fprintf(out, "%d drifted members\n", len(drifts))
	return nil
}

func newTokenCommand(state *commandState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a gRPC bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, _ := cmd.Flags().GetString(flagMember)
			displayName, _ := cmd.Flags().GetString(flagDisplayName)
			rawRoles, _ := cmd.Flags().GetString(flagRoles)
			ttl, _ := cmd.Flags().GetDuration(flagTTL)
			token, err := grpcserver.IssueToken([]byte(state.cfg.TokenSigningKey), state.cfg.TokenIssuer, grpcserver.TokenRequest{
				MemberID:    memberID,
				DisplayName: displayName,
				Roles:       daemon.ParseList(rawRoles),
				TTL:         ttl,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String(flagMember, "", "member id carried as the token subject (required)")
	cmd.Flags().String(flagDisplayName, "", "display name")
	cmd.Flags().String(flagRoles, "", "comma-separated roles")
	cmd.Flags().Duration(flagTTL, defaultTokenTTL, "token lifetime")
	return cmd
}

func (state *commandState) withLogger(run func(logger *zap.Logger) error) error {
	logger, err := logging.New(state.cfg.Log)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	return run(logger)
}

func loadConfig(cmd *cobra.Command, cfg *daemon.Config) error {
	envFile, err := cmd.Flags().GetString(flagEnvFile)
	if err != nil {
		return err
	}
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	var bindErr error
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if bindErr == nil {
			bindErr = v.BindPFlag(flag.Name, flag)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.HTTPListenAddr = strings.TrimSpace(v.GetString(flagHTTPListenAddr))
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(flagGRPCListenAddr))
	cfg.AllowedOrigins = daemon.ParseList(v.GetString(flagAllowedOrigins))
	cfg.SessionSigningKey = v.GetString(flagSessionSigningKey)
	cfg.SessionIssuer = strings.TrimSpace(v.GetString(flagSessionIssuer))
	cfg.SessionCookieName = strings.TrimSpace(v.GetString(flagSessionCookie))
	cfg.TokenSigningKey = v.GetString(flagTokenSigningKey)
	cfg.TokenIssuer = strings.TrimSpace(v.GetString(flagTokenIssuer))
	cfg.AdminIDs = daemon.ParseList(v.GetString(flagAdminIDs))
	cfg.AdminRole = strings.TrimSpace(v.GetString(flagAdminRole))
	cfg.CatalogFile = strings.TrimSpace(v.GetString(flagCatalogFile))
	cfg.TimeZone = strings.TrimSpace(v.GetString(flagTimeZone))
	cfg.DefaultCapacity = v.GetInt(flagDefaultCapacity)
	cfg.CoworkingCost = v.GetInt64(flagCoworkingCost)
	cfg.WeeklyAllowance = v.GetInt64(flagWeeklyAllowance)
	cfg.RetryAttempts = v.GetInt(flagRetryAttempts)
	cfg.RequestTimeout = v.GetDuration(flagRequestTimeout)
	cfg.Log = logging.Config{
		Level:  strings.TrimSpace(v.GetString(flagLogLevel)),
		Format: strings.TrimSpace(v.GetString(flagLogFormat)),
		File:   strings.TrimSpace(v.GetString(flagLogFile)),
	}
	cfg.GormLogLevel = strings.TrimSpace(v.GetString(flagGormLogLevel))

	return cfg.Validate()
}

// loadEnvFile loads path into the process environment without overriding variables that are
// already set.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}
