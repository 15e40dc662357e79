package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/gitado/gitado/internal/ado"
	"github.com/gitado/gitado/internal/auth"
	"github.com/gitado/gitado/internal/common"
	"github.com/gitado/gitado/internal/config"
	"github.com/gitado/gitado/internal/git"
	"github.com/gitado/gitado/internal/handlers/api"
	"github.com/gitado/gitado/internal/handlers/web"
	"github.com/gitado/gitado/internal/middlewares"
	"github.com/gitado/gitado/internal/oauth"
	"github.com/gitado/gitado/internal/repo"
	"github.com/gitado/gitado/internal/store"
	"github.com/gitado/gitado/internal/token"
	"github.com/gitado/gitado/params"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "gitado - GitLab-compatible gateway for Azure DevOps repositories"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitHtmlEngine(templateDir string) *html.Engine {
	var htmlEngine *html.Engine
	if templateDir != "" {
		htmlEngine = html.NewFileSystem(http.Dir(templateDir), ".html")
	} else {
		renderFS, _ := fs.Sub(templateFS, "templates")
		htmlEngine = html.NewFileSystem(http.FS(renderFS), ".html")
	}
	return htmlEngine
}

func mustInitStorage(storageCfg config.StorageConfig) store.Storage {
	switch storageCfg.Backend {
	case "memory":
		return store.NewMemoryStorage()
	case "file":
		storage, err := store.NewFileStorage(storageCfg.File.Path, storageCfg.File.FlushDebounce)
		if err != nil {
			slog.Error("Failed to open file storage", "path", storageCfg.File.Path, "error", err)
			os.Exit(1)
		}
		return storage
	case "bolt":
		storage, err := store.NewBoltStorage(storageCfg.Bolt.Path)
		if err != nil {
			slog.Error("Failed to open bolt storage", "path", storageCfg.Bolt.Path, "error", err)
			os.Exit(1)
		}
		return storage
	case "redis":
		opts, err := redis.ParseURL(storageCfg.Redis.URL)
		if err != nil {
			slog.Error("Invalid redis URL", "error", err)
			os.Exit(1)
		}
		if storageCfg.Redis.PoolSize > 0 {
			opts.PoolSize = storageCfg.Redis.PoolSize
		}
		return store.NewRedisStorage(redis.NewClient(opts))
	default:
		slog.Error("Unknown storage backend", "backend", storageCfg.Backend)
		os.Exit(1)
		return nil
	}
}

func run(ctx *cli.Context) error {
	config, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(config.Debug || ctx.IsSet(debugFlag.Name))

	htmlEngine := mustInitHtmlEngine(config.TemplateDir)
	storage := mustInitStorage(config.Storage)
	defer storage.Close()

	httpClient := &http.Client{}
	adoClient := ado.NewClient(httpClient)

	// services
	var (
		tokenService = token.NewService(storage)
		resolver     = auth.NewResolver(tokenService)
		nameCache    = repo.NewNameCache(storage)
		locator      = repo.NewLocator(adoClient, nameCache)
		oauthService = oauth.NewService(storage, adoClient, tokenService, config.OAuth.ClientSecret)
	)

	// handlers
	var (
		oauthHandler   = web.NewOAuthHandler(oauthService, nameCache)
		projectHandler = api.NewProjectHandler(adoClient, locator)
		tokenHandler   = api.NewTokenHandler(tokenService, locator)
		tunnel         = git.NewTunnel(resolver, locator, httpClient)
	)

	router := fiber.New(fiber.Config{
		Prefork:           false,
		CaseSensitive:     true,
		BodyLimit:         params.ServerBodyLimit,
		IdleTimeout:       params.ServerIdleTimeout,
		ReadTimeout:       params.ServerReadTimeout,
		WriteTimeout:      params.ServerWriteTimeout,
		Views:             htmlEngine,
		PassLocalsToViews: true,
		ErrorHandler:      middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(config.AllowOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, PRIVATE-TOKEN",
	}))
	router.Use(middlewares.InjectGlobalVars(fiber.Map{
		"siteName": config.SiteName,
		"baseURL":  config.BaseURL,
	}))

	// browser-facing authorization flow
	router.Get("/oauth/authorize", oauthHandler.GetAuthorize)
	router.Post("/oauth/authorize", oauthHandler.PostAuthorize)
	router.Post("/oauth/authorize/confirm", oauthHandler.PostConfirm)
	router.Post("/oauth/token", oauthHandler.PostToken)

	// GitLab-compatible REST surface
	apiGroup := router.Group("/api/v4", auth.Middleware(resolver))
	apiGroup.Get("/user", projectHandler.GetUser)
	apiGroup.Get("/version", projectHandler.GetVersion)
	apiGroup.Get("/projects/:id", projectHandler.GetProject)
	apiGroup.Get("/projects/:id/access_tokens", tokenHandler.ListTokens)
	apiGroup.Post("/projects/:id/access_tokens", tokenHandler.CreateToken)
	apiGroup.Delete("/projects/:id/access_tokens/:tokenId", tokenHandler.RevokeToken)
	apiGroup.Post("/projects/:id/access_tokens/:tokenId/rotate", tokenHandler.RotateToken)
	apiGroup.Get("/personal_access_tokens", tokenHandler.ListOwnTokens)

	// smart HTTP wildcards go last so they cannot shadow the routes above
	tunnel.Register(router)

	healthCheckCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	go common.StartHealthCheckServer(healthCheckCtx, done, storage)
	defer func() {
		term()
		<-done
	}()
	return router.Listen(config.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
