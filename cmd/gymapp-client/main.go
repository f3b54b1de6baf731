package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dvcrn/gymapp-client/internal/client"
	"github.com/dvcrn/gymapp-client/internal/config"
	"github.com/dvcrn/gymapp-client/internal/credentials"
	serverhttp "github.com/dvcrn/gymapp-client/internal/http"
	"github.com/dvcrn/gymapp-client/internal/logger"
	"github.com/dvcrn/gymapp-client/internal/proxy"
	"github.com/dvcrn/gymapp-client/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "gymapp-client",
		Usage: "authenticated client for the gym API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "env file to load before the environment"},
		},
		Commands: []*cli.Command{
			{
				Name:      "request",
				Usage:     "send an authenticated request and print the response body",
				ArgsUsage: "METHOD PATH [JSON]",
				Action:    runRequest,
			},
			{
				Name:      "signin",
				Usage:     "sign in and store the credential pair",
				ArgsUsage: "EMAIL PASSWORD",
				Action:    runSignIn,
			},
			{
				Name:   "signout",
				Usage:  "forget the stored credential pair",
				Action: runSignOut,
			},
			{
				Name:   "status",
				Usage:  "show the stored session",
				Action: runStatus,
			},
			{
				Name:  "proxy",
				Usage: "serve the authenticated API to local tools",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address, overrides PROXY_ADDR"},
				},
				Action: runProxy,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Get().Fatal().Err(err).Msg("Command failed")
	}
}

type app struct {
	cfg    *config.Config
	client *client.Client
}

func setup(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg, err := config.Load(cmd.String("env-file"))
	if err != nil {
		return nil, err
	}
	logger.Configure(cfg.Env, cfg.LogLevel)

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c := client.New(client.Options{
		BaseURL:     cfg.API.BaseURL,
		RefreshPath: cfg.API.RefreshPath,
	}, serverhttp.NewHTTPClient(cfg.API.Timeout), store)

	return &app{cfg: cfg, client: c}, nil
}

func newStore(ctx context.Context, cfg *config.Config) (credentials.Store, error) {
	switch cfg.Credentials.Store {
	case config.StoreMemory:
		return credentials.NewMemoryStore(), nil
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Credentials.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Credentials.RedisAddr, err)
		}
		return credentials.NewRedisStore(rdb, cfg.Credentials.RedisKey), nil
	default:
		return credentials.NewFileStore(cfg.Credentials.Path)
	}
}

func runRequest(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 2 {
		return fmt.Errorf("usage: %s METHOD PATH [JSON]", cmd.FullName())
	}
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	if _, err := a.client.LoadStoredCredential(ctx); err != nil {
		return err
	}

	dispose := a.client.Register(func() {
		if err := a.client.SignOut(context.Background()); err != nil {
			logger.Get().Error().Err(err).Msg("Failed to clear credentials")
		}
		fmt.Fprintln(os.Stderr, "Session expired, run signin again.")
	})
	defer dispose()

	var body any
	if raw := cmd.Args().Get(2); raw != "" {
		if !json.Valid([]byte(raw)) {
			return errors.New("request body is not valid JSON")
		}
		body = json.RawMessage(raw)
	}

	resp, err := a.client.Do(ctx, request.Descriptor{
		Method: strings.ToUpper(cmd.Args().Get(0)),
		URL:    cmd.Args().Get(1),
		Body:   body,
	})
	if err != nil {
		return err
	}
	return printBody(resp.Body)
}

func runSignIn(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: %s EMAIL PASSWORD", cmd.FullName())
	}
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	session, err := a.client.SignIn(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
	if err != nil {
		return err
	}
	fmt.Printf("Signed in, credentials saved to %s\n", a.client.Store().Name())
	if len(session.User) > 0 {
		return printBody(session.User)
	}
	return nil
}

func runSignOut(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	if err := a.client.SignOut(ctx); err != nil {
		return err
	}
	fmt.Println("Signed out")
	return nil
}

func runStatus(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	store := a.client.Store()
	pair, err := store.Get(ctx)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			fmt.Printf("Not signed in (%s)\n", store.Name())
			return nil
		}
		return err
	}

	fmt.Printf("Signed in (%s)\n", store.Name())
	fmt.Printf("  refresh token: %t\n", pair.RefreshToken != "")
	if exp, ok := pair.AccessExpiry(); ok {
		fmt.Printf("  access token expires: %s\n", exp.Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}

func runProxy(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	addr := a.cfg.Proxy.Addr
	if override := cmd.String("addr"); override != "" {
		addr = override
	}

	srv := proxy.NewServer(a.client)
	defer srv.Close()
	return srv.Start(addr)
}

func printBody(body []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		_, err = os.Stdout.Write(body)
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(os.Stdout)
	return err
}
