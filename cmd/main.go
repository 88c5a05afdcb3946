package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-tracer/config"
	"github.com/xssnick/tonutils-tracer/internal/contracts"
	"github.com/xssnick/tonutils-tracer/internal/store"
	"github.com/xssnick/tonutils-tracer/internal/tracing"
	"github.com/xssnick/tonutils-tracer/metrics"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
)

type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

var (
	ConfigPath   = flag.String("config", "tracer-config.json", "path to config, created with defaults if missing")
	Verbosity    = flag.Int("verbosity", 2, "3 = debug, 2 = info, 1 = warn, 0 = error")
	Force        = flag.Bool("force", false, "trace even if tracing is disabled in config")
	Disable      = flag.Bool("disable", false, "fetch message trees without evaluating them")
	NoWait       = flag.Bool("no-wait", false, "fetch root messages only, never fail")
	AllowCompute = flag.String("allow-compute", "", "comma separated compute exit codes to ignore")
	AllowAction  = flag.String("allow-action", "", "comma separated action result codes to ignore")

	Contracts listFlag
	Watch     listFlag
)

func main() {
	flag.Var(&Contracts, "contract", "Name=address of a known contract, repeatable")
	flag.Var(&Watch, "watch", "account to index before tracing (liteserver store), repeatable")
	flag.Parse()
	liteclient.Logger = func(v ...any) {}

	log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(zerolog.InfoLevel)

	switch *Verbosity {
	case 3:
		log.Logger = log.Logger.Level(zerolog.DebugLevel).With().Logger()
	case 2:
		log.Logger = log.Logger.Level(zerolog.InfoLevel).With().Logger()
	case 1:
		log.Logger = log.Logger.Level(zerolog.WarnLevel).With().Logger()
	case 0:
		log.Logger = log.Logger.Level(zerolog.ErrorLevel).With().Logger()
	}

	ids := flag.Args()
	if len(ids) == 0 {
		log.Fatal().Msg("no message ids specified")
	}

	mode, err := tracing.ModeFromFlags(*Force, *Disable, *NoWait)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid flags")
		return
	}

	cfg, err := config.LoadConfig(*ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
		return
	}

	metrics.InitMetrics(cfg.MetricsNamespace, "tonutils_tracer")

	if cfg.MetricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
				log.Fatal().Err(err).Msg("listen metrics failed")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	msgStore, closer, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init message store")
		return
	}
	defer closer()

	if lite, ok := msgStore.(*store.Lite); ok {
		for _, addr := range Watch {
			if err = lite.Watch(ctx, addr); err != nil {
				log.Fatal().Err(err).Str("addr", addr).Msg("failed to index account")
				return
			}
		}
	} else if len(Watch) > 0 {
		log.Warn().Msg("watch is supported by liteserver store only, ignored")
	}
	if cfg.Store.CacheSize > 0 {
		if msgStore, err = store.NewCached(msgStore, cfg.Store.CacheSize); err != nil {
			log.Fatal().Err(err).Msg("failed to init message cache")
			return
		}
	}

	registry := contracts.NewRegistry()
	if err = contracts.LoadDir(registry, cfg.ArtifactsPath); err != nil {
		log.Warn().Err(err).Str("path", cfg.ArtifactsPath).Msg("artifacts are not loaded, contracts will not be recognized")
	}

	tracer := tracing.NewTracer(msgStore, registry, tracing.Options{
		Enabled:           cfg.Tracing.Enabled,
		Allowed:           allowedCodes(cfg.Tracing),
		Platforms:         cfg.Tracing.Platforms,
		PlatformCodeParam: cfg.Tracing.PlatformCodeParam,
		ConsoleAddress:    cfg.Tracing.ConsoleAddress,
		FetchConcurrency:  cfg.Tracing.FetchConcurrency,
		Output:            os.Stdout,
	})

	for _, c := range Contracts {
		name, addr, err := parseContract(c)
		if err != nil {
			log.Fatal().Err(err).Str("value", c).Msg("invalid contract flag")
			return
		}
		a := registry.ByName(name)
		if a == nil {
			log.Fatal().Str("name", name).Msg("unknown contract")
			return
		}
		tracer.AddToContext(addr, &contracts.Contract{Artifact: a})
	}

	callAllowed, err := flagCodes(*AllowCompute, *AllowAction)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid allow flags")
		return
	}

	failed := false
	for _, id := range ids {
		root, err := tracer.Trace(ctx, id, mode, callAllowed)
		if rf, ok := tracing.IsReportedFailure(err); ok {
			failed = true
			log.Error().Str("msg_id", id).Str("phase", string(rf.Phase)).Int32("code", rf.Code).Msg("transaction tree reverted")
			continue
		}
		if err != nil {
			log.Fatal().Err(err).Str("msg_id", id).Msg("failed to trace")
			return
		}
		log.Info().Str("msg_id", id).Int("out_messages", len(root.OutMessages)).Str("mode", mode.String()).Msg("traced")
	}

	if failed {
		closer()
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (tracing.MessageStore, func(), error) {
	switch cfg.Type {
	case config.StoreTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return store.NewRedis(client, cfg.Redis.Prefix, 0), func() { _ = client.Close() }, nil
	case config.StoreTypePostgres:
		pg, err := store.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case config.StoreTypeLiteserver:
		if len(cfg.Liteserver.Backends) == 0 {
			return nil, nil, fmt.Errorf("no backends specified")
		}
		blc, err := store.NewBackendBalancer(ctx, cfg.Liteserver.Backends, store.BalancerType(cfg.Liteserver.BalancerType))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init backend balancer: %w", err)
		}

		lite, err := store.NewLite(ton.NewAPIClient(blc, ton.ProofCheckPolicyFast).WithRetry(), store.LiteOptions{
			QueriesPerSecond: cfg.Liteserver.QueriesPerSecond,
			ScanDepth:        cfg.Liteserver.ScanDepth,
			IndexSize:        cfg.Liteserver.IndexCacheSize,
		})
		if err != nil {
			return nil, nil, err
		}
		return lite, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store type: %q", cfg.Type)
}

// parseContract splits a Name=address flag value, the address is returned in
// raw form as messages of all stores carry it.
func parseContract(value string) (string, string, error) {
	name, addr, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("contract must be in Name=address format")
	}

	a, err := address.ParseRawAddr(addr)
	if err != nil {
		a, err = address.ParseAddr(addr)
		if err != nil {
			return "", "", fmt.Errorf("invalid address %s: %w", addr, err)
		}
	}
	return name, a.StringRaw(), nil
}

func allowedCodes(cfg config.TracingConfig) tracing.AllowedCodes {
	allowed := tracing.AllowedCodes{}.
		WithCompute(cfg.AllowedCodes.Compute...).
		WithAction(cfg.AllowedCodes.Action...)
	for addr, codes := range cfg.AllowedByAddress {
		allowed = allowed.WithAddressCodes(addr, tracing.PhaseCodes{
			Compute: codes.Compute,
			Action:  codes.Action,
		})
	}
	return allowed
}

func flagCodes(compute, action string) (tracing.AllowedCodes, error) {
	c, err := parseCodes(compute)
	if err != nil {
		return tracing.AllowedCodes{}, fmt.Errorf("compute codes: %w", err)
	}
	a, err := parseCodes(action)
	if err != nil {
		return tracing.AllowedCodes{}, fmt.Errorf("action codes: %w", err)
	}
	return tracing.AllowedCodes{}.WithCompute(c...).WithAction(a...), nil
}

func parseCodes(list string) ([]int32, error) {
	var codes []int32
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid code %q: %w", s, err)
		}
		codes = append(codes, int32(v))
	}
	return codes, nil
}
