// Command alfredctl manages Alfred accounts directly against the configured store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	_ "time/tzdata"

	"github.com/alfredchat/alfred/internal/app/domain/user"
	"github.com/alfredchat/alfred/internal/app/runtime"
	"github.com/alfredchat/alfred/internal/app/services/chat"
	"github.com/alfredchat/alfred/internal/config"
	"github.com/alfredchat/alfred/pkg/logger"
)

var cli struct {
	Env  string  `help:"Dotenv file read before the environment." default:".env" type:"path"`
	User UserCmd `cmd:"" help:"Manage user accounts."`
}

type UserCmd struct {
	Create UserCreateCmd `cmd:"" help:"Create a user or reset an existing user's password."`
	List   UserListCmd   `cmd:"" help:"List user accounts."`
}

type UserCreateCmd struct {
	Username     string `arg:"" help:"Allow-listed username."`
	Password     string `required:"" env:"ALFRED_PASSWORD" help:"New password."`
	Persona      string `help:"Agent persona."`
	Goal         string `help:"Agent goal."`
	Instructions string `help:"Special instructions."`
	DisplayName  string `help:"Name the assistant uses for the user."`
}

func (c *UserCreateCmd) Run(ctx context.Context, svc *chat.Service, out io.Writer) error {
	profile := user.Profile{
		AgentPersona:        c.Persona,
		AgentGoal:           c.Goal,
		SpecialInstructions: c.Instructions,
		UserDisplayName:     c.DisplayName,
	}.Trimmed()

	if err := svc.CreateOrUpdateUser(ctx, c.Username, c.Password, &profile); err != nil {
		if errors.Is(err, chat.ErrUnauthorizedUsername) {
			return fmt.Errorf("%q is not in the allowed usernames %v", c.Username, svc.AllowedUsernames())
		}
		return err
	}
	fmt.Fprintf(out, "User '%s' created/updated successfully.\n", c.Username)
	return nil
}

type UserListCmd struct{}

func (c *UserListCmd) Run(ctx context.Context, svc *chat.Service, out io.Writer) error {
	users, err := svc.Users(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tDISPLAY NAME\tCREATED\tUPDATED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Username, u.Profile.UserDisplayName,
			formatTime(u.CreatedAt), formatTime(u.LastUpdatedAt))
	}
	return tw.Flush()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kctx := kong.Parse(&cli,
		kong.Name("alfredctl"),
		kong.Description("Administrative tasks for an Alfred deployment."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.BindTo(io.Writer(os.Stdout), (*io.Writer)(nil)),
	)

	if err := run(ctx, kctx); err != nil {
		fmt.Fprintf(os.Stderr, "alfredctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, kctx *kong.Context) error {
	cfg, err := config.LoadFile(cli.Env)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	log := runtime.NewLogger(cfg)
	log.SetOutput(os.Stderr)

	if cfg.Store.Driver == config.StoreMemory {
		return errors.New("STORE_DRIVER=memory keeps nothing between processes; point alfredctl at postgres or firestore")
	}

	svc, closeStore, err := openService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	return kctx.Run(svc)
}

func openService(ctx context.Context, cfg *config.Config, log *logger.Logger) (*chat.Service, func(), error) {
	store, err := runtime.OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	svc := chat.New(chat.Dependencies{
		Store:    store,
		Access:   config.LoadAccessPolicyOrDefault(cfg.AccessFile),
		Location: cfg.Location(),
		Logger:   log.Named("alfredctl"),
	})
	return svc, func() { _ = store.Close() }, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
