package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"sjsage522/productharvester/config"
	"sjsage522/productharvester/helpers"
	"sjsage522/productharvester/internal/crawler"
	"sjsage522/productharvester/logger"
	"sjsage522/productharvester/services/cache"
	"sjsage522/productharvester/services/publisher"
	"sjsage522/productharvester/services/worker"
)

// ErrNothingScraped is returned when a run produced no records at all
var ErrNothingScraped = errors.New("no products were scraped")

func main() {
	// Initialize logger first
	logger.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewMain().Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// CLI holds the command line flags. Defaults come from the configuration.
type CLI struct {
	Dialect      string        `help:"Site dialect to harvest (${dialects})." short:"d"`
	URL          string        `help:"Listing URL to start from instead of the dialect's default." name:"url"`
	APIBase      string        `help:"Content API base URL." name:"api-base" default:"${api_base}"`
	MaxPages     int           `help:"Maximum listing pages to visit." name:"max-pages" default:"${max_pages}"`
	Limit        int           `help:"Stop after this many successful publishes (0 means no limit)."`
	Delay        time.Duration `help:"Pause between listing page fetches." default:"${delay}"`
	DryRun       bool          `help:"Extract and deduplicate without publishing." name:"dry-run"`
	ListDialects bool          `help:"Print the known dialects and exit." name:"list-dialects"`
}

// Main represents the program.
type Main struct {
	// Config is loaded from the environment when nil.
	Config *config.Config

	// Result of the last run, for end-to-end tests.
	Result worker.RunResult
}

// NewMain returns a new instance of Main.
func NewMain() *Main {
	return &Main{}
}

// Run parses args and executes one harvesting run.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if logger.Default == nil {
		logger.Init()
	}

	cfg := m.Config
	if cfg == nil {
		loaded, err := config.LoadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("harvester"),
		kong.Description("Harvest product listings and publish new ones to the content API."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Vars{
			"dialects":  strings.Join(crawler.DialectNames(), ", "),
			"api_base":  cfg.ContentAPIBase,
			"max_pages": strconv.Itoa(cfg.MaxPages),
			"delay":     cfg.PageDelay.String(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}
	if _, err := parser.Parse(args); err != nil {
		return err
	}

	if cli.ListDialects {
		for _, d := range crawler.Dialects() {
			fmt.Fprintf(stdout, "%-10s %s\n", d.Name, d.StartURL)
		}
		return nil
	}

	dialect, err := crawler.LookupDialect(cli.Dialect)
	if err != nil {
		return err
	}
	if cli.APIBase == "" {
		return errors.New("content API base is required (--api-base or HARVEST_CONTENT_API_BASE)")
	}

	logger.Debug("Dialect %s: start=%s rendering=%t heuristics=%t", dialect.Name, dialect.StartURL, dialect.RequiresRendering, dialect.Heuristics)

	services, err := initializeServices(ctx, cfg, dialect)
	if err != nil {
		return err
	}
	defer services.Cleanup()

	client := helpers.NewClient(cfg.RequestTimeout)
	api := publisher.NewContentAPI(cli.APIBase, client, cfg.UserAgent)

	w := worker.NewWorker(dialect, worker.Deps{
		Fetcher: services.Fetcher,
		Detail:  services.Detail,
		Catalog: api,
		Records: api,
		Stream:  services.Stream,
	}, worker.Options{
		StartURL:       cli.URL,
		MaxPages:       cli.MaxPages,
		Delay:          cli.Delay,
		Limit:          cli.Limit,
		DryRun:         cli.DryRun,
		PushgatewayURL: cfg.PushgatewayURL,
	})

	logger.Default.Info().
		Str("environment", cfg.Environment).
		Str("dialect", dialect.Name).
		Int("max_pages", cli.MaxPages).
		Bool("dry_run", cli.DryRun).
		Msg("Starting run")

	m.Result = w.Run(ctx)
	if m.Result.Scraped == 0 && m.Result.Published == 0 {
		return ErrNothingScraped
	}
	return nil
}

// Services holds the per-run collaborators built from the configuration
type Services struct {
	Fetcher  crawler.Fetcher
	Detail   crawler.DetailResolver
	Stream   publisher.StreamPublisher
	renderer *crawler.Renderer
}

// Cleanup releases the browser and the Redis connection
func (s *Services) Cleanup() {
	if s.renderer != nil {
		s.renderer.Close()
	}
	if s.Stream != nil {
		s.Stream.Close()
	}
}

// initializeServices builds the fetcher for the dialect and the optional backends
func initializeServices(ctx context.Context, cfg *config.Config, dialect crawler.DialectConfig) (*Services, error) {
	services := &Services{}
	log := logger.Default

	if dialect.RequiresRendering {
		renderer, err := crawler.NewRenderer(dialect, crawler.RendererConfig{
			Bin:         cfg.ChromeBin,
			NoSandbox:   cfg.ChromeNoSandbox,
			UserAgent:   cfg.UserAgent,
			Wait:        cfg.RenderWait,
			Settle:      cfg.RenderSettle,
			PageTimeout: cfg.RequestTimeout * 4,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start renderer: %w", err)
		}
		services.renderer = renderer
		services.Fetcher = renderer
		if len(dialect.DetailImage) > 0 {
			services.Detail = renderer
		}
	} else {
		var cacheSvc cache.CacheService
		if cfg.MemcacheAddr != "" {
			memcache := cache.NewMemcacheService(cfg.MemcacheAddr)
			if err := memcache.Ping(); err != nil {
				log.Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache unreachable; cooldown disabled")
			} else {
				cacheSvc = memcache
				logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
			}
		}

		fetcher := crawler.NewHTTPFetcher(dialect, helpers.NewClient(cfg.RequestTimeout), cfg.UserAgent, cacheSvc)
		fetcher.RespectRobots = cfg.RespectRobots
		if fetcher.BlockTime == 0 {
			fetcher.BlockTime = cfg.CooldownAfter
		}
		services.Fetcher = fetcher
	}

	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		if err := redisPublisher.Ping(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unreachable; notifications disabled")
			redisPublisher.Close()
		} else {
			services.Stream = redisPublisher
			logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
				cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
		}
	}

	return services, nil
}
