package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/urfave/cli/v2"
	"github.com/zeromicro/go-zero/core/logx"
	zerosvc "github.com/zeromicro/go-zero/core/service"

	"registry-client-sol/internal/config"
	"registry-client-sol/internal/logic/pda"
	"registry-client-sol/internal/logic/submit"
	"registry-client-sol/internal/svc"
	"registry-client-sol/internal/types"
	"registry-client-sol/pkg/logger"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
			os.Exit(2)
		}
	}()

	app := &cli.App{
		Name:  "registry",
		Usage: "registry program client: derive addresses, initialize storage, register models",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"f"}, Value: "etc/registry.yaml", Usage: "the config file"},
			&cli.StringFlag{Name: "keypair", Aliases: []string{"k"}, Usage: "keypair file, overrides program.keypair"},
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "create the storagePool root account of the authority",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "model", Usage: "model carried by the initialize payload"}},
				Action: runInit,
			},
			{
				Name:   "register",
				Usage:  "register a model entry",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "model", Required: true}},
				Action: runRegister,
			},
			{
				Name:  "entry",
				Usage: "fetch and decode an entry account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Required: true, Usage: "entry key (the model)"},
					&cli.StringFlag{Name: "owner", Usage: "owner pubkey, defaults to the keypair's pubkey"},
				},
				Action: runEntry,
			},
			{
				Name:  "derive",
				Usage: "derive storagePool / entry addresses (no network)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Required: true},
					&cli.StringFlag{Name: "key", Usage: "entry key, optional"},
				},
				Action: runDerive,
			},
			{
				Name:   "rent",
				Usage:  "rent-exempt lamports for an entry account",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "model", Required: true}},
				Action: runRent,
			},
			{
				Name:   "watch",
				Usage:  "keep polling pending transactions and publish receipts (requires submit.use_redis_journal)",
				Action: runWatch,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.RegistryConfig, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if kp := c.String("keypair"); kp != "" {
		cfg.ProgramConf.Keypair = kp
	}
	if err := logger.Init(cfg.LogConf.ToLogOption()); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func setup(c *cli.Context) (*svc.ServiceContext, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return svc.NewServiceContext(cfg)
}

func loadAuthority(cfg *config.RegistryConfig) (*submit.Authority, error) {
	if cfg.ProgramConf.Keypair == "" {
		return nil, fmt.Errorf("no keypair configured (program.keypair or --keypair)")
	}
	return submit.LoadAuthority(expandHome(cfg.ProgramConf.Keypair))
}

func expandHome(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runInit(c *cli.Context) error {
	sc, err := setup(c)
	if err != nil {
		return err
	}
	defer sc.Close()

	authority, err := loadAuthority(sc.Config)
	if err != nil {
		return err
	}
	defer authority.Release()

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	res, err := sc.Client.Initialize(ctx, authority, c.String("model"))
	if err != nil {
		return err
	}
	fmt.Printf("storagePool: %s (bump %d)\nsignature:   %s\nresult:      %s\n",
		res.Address.Pubkey, res.Address.Bump, res.Envelope.Signature, res.Receipt.Reason())
	return nil
}

func runRegister(c *cli.Context) error {
	sc, err := setup(c)
	if err != nil {
		return err
	}
	defer sc.Close()

	authority, err := loadAuthority(sc.Config)
	if err != nil {
		return err
	}
	defer authority.Release()

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	res, err := sc.Client.Register(ctx, authority, c.String("model"))
	if err != nil {
		return err
	}
	fmt.Printf("entry:     %s (bump %d)\nsignature: %s\nresult:    %s\n",
		res.Address.Pubkey, res.Address.Bump, res.Envelope.Signature, res.Receipt.Reason())
	return nil
}

func runEntry(c *cli.Context) error {
	sc, err := setup(c)
	if err != nil {
		return err
	}
	defer sc.Close()

	var owner types.Pubkey
	if s := c.String("owner"); s != "" {
		if owner, err = types.TryPubkeyFromBase58(s); err != nil {
			return fmt.Errorf("invalid owner: %w", err)
		}
	} else {
		authority, err := loadAuthority(sc.Config)
		if err != nil {
			return err
		}
		owner = authority.Pubkey()
		authority.Release()
	}

	entry, err := sc.Client.FetchEntry(c.Context, owner, c.String("key"))
	if err != nil {
		return err
	}
	fmt.Printf("storage: %s\nowner:   %s\nmodel:   %s\n", entry.Storage, entry.Owner, entry.Model)
	return nil
}

func runDerive(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	owner, err := types.TryPubkeyFromBase58(c.String("owner"))
	if err != nil {
		return fmt.Errorf("invalid owner: %w", err)
	}

	d := pda.NewDeriver(cfg.ProgramConf.Program())
	root, err := d.StorageRoot(owner)
	if err != nil {
		return err
	}
	fmt.Printf("program:     %s\nstoragePool: %s (bump %d)\n", d.Program(), root.Pubkey, root.Bump)

	if key := c.String("key"); key != "" {
		entry, err := d.Entry(key, owner)
		if err != nil {
			return err
		}
		fmt.Printf("entry:       %s (bump %d)\n", entry.Pubkey, entry.Bump)
	}
	return nil
}

func runRent(c *cli.Context) error {
	sc, err := setup(c)
	if err != nil {
		return err
	}
	defer sc.Close()

	lamports, err := sc.Client.EntryRent(c.Context, c.String("model"))
	if err != nil {
		return err
	}
	fmt.Printf("%d lamports\n", lamports)
	return nil
}

func runWatch(c *cli.Context) error {
	sc, err := setup(c)
	if err != nil {
		return err
	}
	defer sc.Close()

	watcher, err := sc.NewConfirmWatcher()
	if err != nil {
		return err
	}
	sg := zerosvc.NewServiceGroup()
	sg.Add(watcher)

	logx.Infof("Starting confirm watcher")
	go sg.Start()

	// 等待退出信号
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logx.Info("Shutting down services...")
	sg.Stop()
	return nil
}
