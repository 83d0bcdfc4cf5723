package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/finestructure/historyview/internal/config"
	"github.com/finestructure/historyview/internal/database"
	"github.com/finestructure/historyview/internal/database/repository"
	"github.com/finestructure/historyview/internal/history"
	"github.com/finestructure/historyview/internal/logging"
	"github.com/finestructure/historyview/internal/playground"
	"github.com/finestructure/historyview/internal/transport"
	"github.com/finestructure/historyview/internal/tui"
)

func dbFlag() cli.Flag {
	return &cli.StringFlag{Name: "db", Usage: "path to the known-peers database"}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "open the playground with its history view",
		Flags:  runFlags(),
		Action: runAction,
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "listen", Usage: "address to accept peers on"},
		&cli.StringSliceFlag{Name: "peer", Usage: "peer address to dial (repeatable)"},
		&cli.StringFlag{Name: "name", Usage: "name announced to peers"},
		&cli.BoolFlag{Name: "broadcast", Usage: "forward dropped snapshots to peers"},
		&cli.BoolFlag{Name: "offline", Usage: "run without opening a listener"},
		&cli.StringFlag{Name: "relay", Usage: "websocket relay room to join instead of direct peering"},
		dbFlag(),
	}
}

func peersCommand() *cli.Command {
	return &cli.Command{
		Name:  "peers",
		Usage: "list the known-peer address book",
		Flags: []cli.Flag{dbFlag()},
		Commands: []*cli.Command{
			{
				Name:      "forget",
				Usage:     "remove a peer from the address book",
				ArgsUsage: "<addr>",
				Flags:     []cli.Flag{dbFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withKnownPeer(ctx, cmd, func(repo *repository.PeerRepo, addr string) error {
						return repo.Forget(ctx, addr)
					})
				},
			},
			{
				Name:      "autodial",
				Usage:     "choose whether a peer is redialled on startup",
				ArgsUsage: "<addr> <on|off>",
				Flags:     []cli.Flag{dbFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					var enabled bool
					switch strings.ToLower(cmd.Args().Get(1)) {
					case "on":
						enabled = true
					case "off":
					default:
						return cli.Exit("peers autodial: expected on or off", 2)
					}
					return withKnownPeer(ctx, cmd, func(repo *repository.PeerRepo, addr string) error {
						return repo.SetAutoDial(ctx, addr, enabled)
					})
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			known, err := repository.NewPeerRepo(db).List(ctx)
			if err != nil {
				return fmt.Errorf("list peers: %w", err)
			}
			w := tabwriter.NewWriter(writer(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADDR\tNAME\tLAST SEEN\tAUTO DIAL")
			for _, p := range known {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", p.Addr, p.Name, p.LastSeen.Local().Format("2006-01-02 15:04"), p.AutoDial)
			}
			return w.Flush()
		},
	}
}

// withKnownPeer runs fn against the address book entry named by the first argument.
func withKnownPeer(ctx context.Context, cmd *cli.Command, fn func(*repository.PeerRepo, string) error) error {
	addr := strings.TrimSpace(cmd.Args().First())
	if addr == "" {
		return cli.Exit(fmt.Sprintf("peers %s: missing address", cmd.Name), 2)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repository.NewPeerRepo(db)
	p, err := repo.Get(ctx, addr)
	if err != nil {
		return fmt.Errorf("get peer: %w", err)
	}
	if p == nil {
		return cli.Exit(fmt.Sprintf("peers %s: unknown peer %s", cmd.Name, addr), 1)
	}
	return fn(repo, addr)
}

func relayCommand() *cli.Command {
	return &cli.Command{
		Name:  "relay",
		Usage: "serve websocket rooms for playgrounds that cannot reach each other directly",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "address to serve on"},
			&cli.StringFlag{Name: "redis", Usage: "redis address used to share rooms between relays"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if v := cmd.String("listen"); v != "" {
				cfg.Relay.Listen = v
			}
			if v := cmd.String("redis"); v != "" {
				cfg.Relay.Redis = v
			}
			logger, closeLog, err := logging.Init(cfg.Logging, logging.InitOptions{
				App:        "historyview-relay",
				Version:    version,
				DefaultDir: config.DataDir(),
			})
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			defer func() { _ = closeLog() }()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := transport.RelayOptions{Logger: logger}
			if cfg.Relay.Redis != "" {
				bp, err := transport.NewRedisBackplane(ctx, cfg.Relay.Redis, cfg.Relay.RedisPrefix)
				if err != nil {
					return err
				}
				defer bp.Close()
				opts.Backplane = bp
			}
			return serveRelay(ctx, cfg.Relay.Listen, transport.NewRelay(opts), logger)
		},
	}
}

func serveRelay(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("relay listening", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("relay: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relay shutdown: %w", err)
	}
	return nil
}

func encodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "encode",
		Usage:     "print a snapshot file as base64, ready to paste into a history view",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "validate", Usage: "fail unless the file is a playground document"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return cli.Exit("encode: missing file argument", 2)
			}
			var (
				data []byte
				err  error
			)
			if path == "-" {
				data, err = io.ReadAll(reader(cmd))
			} else {
				data, err = os.ReadFile(path)
			}
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			if cmd.Bool("validate") {
				if _, err := playground.DecodeDocument(data); err != nil {
					return cli.Exit(fmt.Sprintf("encode: %v", err), 1)
				}
			}
			_, err = fmt.Fprintln(writer(cmd), tui.EncodeSnapshot(data))
			return err
		},
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.Init(cfg.Logging, logging.InitOptions{
		App:        "historyview",
		Version:    version,
		DefaultDir: config.DataDir(),
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = closeLog() }()

	db, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	book := repository.NewPeerRepo(db)

	keys := tui.NewKeyRegistry()
	if err := playground.RegisterKeys(keys); err != nil {
		return fmt.Errorf("keybindings: %w", err)
	}
	if err := keys.ApplyKeybindingConfig(cfg.Keybindings); err != nil {
		return fmt.Errorf("keybindings: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		tr  transport.Transport
		tcp *transport.TCP
	)
	switch {
	case cmd.Bool("offline"):
		tr = transport.NewHub().Join(cfg.Node.Name)
	case cfg.Transport.RelayURL != "":
		tr = transport.NewWS(transport.WSOptions{
			URL:    cfg.Transport.RelayURL,
			Name:   cfg.Node.Name,
			Logger: logger,
		})
	default:
		tcp = transport.NewTCP(transport.TCPOptions{
			Addr:   cfg.Transport.Listen,
			Name:   cfg.Node.Name,
			Book:   book,
			Logger: logger,
		})
		tr = tcp
	}
	if err := tr.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	defer tr.Close()

	if tcp != nil {
		addrs := cfg.Transport.Peers
		if cfg.Transport.AutoDial {
			known, err := book.AutoDial(ctx)
			if err != nil {
				logger.Warn("load known peers", "err", err)
			}
			for _, p := range known {
				addrs = append(addrs, p.Addr)
			}
		}
		dialPeers(tcp, addrs, logger)
	}

	app := playground.NewApp(playground.Document{Title: cfg.Node.Name}, playground.Options{
		View: tui.Options{
			Keys:        keys,
			DropEnabled: cfg.UI.DropEnabled,
			PeerRows:    cfg.UI.PeerRows,
		},
		Transport:        tr,
		Logger:           logger,
		BroadcastEnabled: cfg.History.BroadcastEnabled,
	})
	persistBroadcast(app.Store(), cfg.History.BroadcastEnabled, logger)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

// persistBroadcast writes the broadcast toggle back to the config file
// whenever it changes, so the next run starts the same way.
func persistBroadcast(store *history.Store, initial bool, logger *slog.Logger) {
	saved := initial
	store.Subscribe(func(s history.State) {
		if s.BroadcastEnabled == saved {
			return
		}
		saved = s.BroadcastEnabled
		err := config.Update(func(c *config.Config) { c.History.BroadcastEnabled = saved })
		if err != nil {
			logger.Warn("save broadcast setting", "err", err)
		}
	})
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if v := cmd.String("db"); v != "" {
		cfg.Database.Path = v
	}
	if v := cmd.String("listen"); v != "" {
		cfg.Transport.Listen = v
	}
	if v := cmd.String("relay"); v != "" {
		cfg.Transport.RelayURL = v
	}
	if v := cmd.String("name"); v != "" {
		cfg.Node.Name = v
	}
	if cmd.IsSet("broadcast") {
		cfg.History.BroadcastEnabled = cmd.Bool("broadcast")
	}
	cfg.Transport.Peers = append(cfg.Transport.Peers, cmd.StringSlice("peer")...)
	return cfg, nil
}

func openDatabase(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

// dialPeers connects to every distinct address in the background so a
// slow or absent peer does not hold up the UI.
func dialPeers(tr *transport.TCP, addrs []string, logger *slog.Logger) {
	seen := make(map[string]bool, len(addrs))
	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		addr := addr
		go func() {
			if err := tr.AddPeer(addr); err != nil {
				logger.Warn("dial peer", "addr", addr, "err", err)
			}
		}()
	}
}

func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func reader(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}
