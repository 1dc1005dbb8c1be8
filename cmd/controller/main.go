package main

import (
	"bot-controller-go/internal/api"
	"bot-controller-go/internal/config"
	"bot-controller-go/internal/controller"
	"bot-controller-go/internal/exchange"
	"bot-controller-go/internal/logger"
	"bot-controller-go/internal/metrics"
	"bot-controller-go/internal/models"
	"bot-controller-go/internal/notify"
	"bot-controller-go/internal/persistence"
	"bot-controller-go/internal/reporter"
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	botsPath := flag.String("bots", "", "path to a JSON array of bot definitions (overrides bots_file)")
	startAll := flag.Bool("start", false, "start every bot in the bots file")
	resume := flag.Bool("resume", false, "restart bots that were running when the process last exited")
	flag.Parse()

	// 先用默认配置初始化日志, 以便记录配置加载过程
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}
	if *botsPath != "" {
		cfg.BotsFile = *botsPath
	}

	log := logger.InitLogger(cfg.LogConfig)
	defer logger.Sync()

	if err := run(cfg, *startAll, *resume, log); err != nil {
		logger.S().Fatal(err)
	}
}

func run(cfg *models.Config, startAll, resume bool, log *zap.Logger) error {
	metrics.InitMetrics()
	binance.UseTestnet = cfg.IsTestnet

	store, err := persistence.Open(cfg.Storage, log.Named("store"))
	if err != nil {
		return err
	}
	defer store.Close()

	resolver, err := newResolver(cfg, log.Named("exchange"))
	if err != nil {
		return err
	}

	hub := notify.NewHub(log.Named("ws"))
	defer hub.Close()
	observers := []controller.Observer{hub}
	if cfg.NatsURL != "" {
		pub, err := notify.NewNATSPublisher(cfg.NatsURL, log.Named("nats"))
		if err != nil {
			log.Warn("nats publisher disabled", zap.Error(err))
		} else {
			defer pub.Close()
			observers = append(observers, pub)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := controller.New(ctx, store, resolver, notify.NewFanout(log, observers...), log.Named("controller"), controller.OptionsFromConfig(cfg))

	var defs []models.BotDefinition
	if cfg.BotsFile != "" {
		if defs, err = config.LoadBotDefinitions(cfg.BotsFile); err != nil {
			return err
		}
	}
	startBots(ctx, ctrl, defs, startAll, resume, log)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewHandler(ctrl, hub, log.Named("api")).Routes(cfg.CORS),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("mode", cfg.Mode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go monitorStatus(ctx, ctrl, time.Duration(cfg.StatusIntervalSec)*time.Second)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		log.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown failed", zap.Error(err))
	}
	// 保留 is_running 标记, 下次以 -resume 启动时恢复
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		log.Error("controller shutdown incomplete", zap.Error(err))
	}
	log.Info("bye")
	return nil
}

func newResolver(cfg *models.Config, log *zap.Logger) (exchange.Resolver, error) {
	if cfg.Mode == "live" {
		log.Info("live trading", zap.Bool("testnet", cfg.IsTestnet), zap.Int("users", len(cfg.Users)))
		return exchange.NewLiveResolver(cfg.Users, cfg.Breaker, log), nil
	}

	// 模拟盘: 行情来自币安公共接口, 成交在本地撮合
	market := exchange.NewBinanceClient("", "", cfg.Breaker, log.Named("market"))
	log.Info("paper trading", zap.Float64("initial_balance", cfg.Paper.InitialBalance), zap.String("quote", cfg.Paper.QuoteAsset))
	return exchange.NewPaperResolver(market, cfg.Paper, log), nil
}

// startBots starts the definitions requested on the command line. With resume
// only bots found in the pending-restore table are started.
func startBots(ctx context.Context, ctrl *controller.Controller, defs []models.BotDefinition, startAll, resume bool, log *zap.Logger) {
	pending := make(map[string]bool)
	for _, s := range ctrl.PendingRestores() {
		pending[s.BotID] = true
	}

	known := make(map[string]bool, len(defs))
	for _, def := range defs {
		known[def.ID] = true
		if !startAll && !(resume && pending[def.ID]) {
			continue
		}
		if _, err := ctrl.StartBot(ctx, def); err != nil {
			log.Error("failed to start bot", zap.String("bot_id", def.ID), zap.Error(err))
		}
	}

	for id := range pending {
		if !known[id] {
			log.Warn("bot was running before restart but has no definition", zap.String("bot_id", id))
		}
	}
}

// monitorStatus 定期打印所有运行中机器人的状态表
func monitorStatus(ctx context.Context, ctrl *controller.Controller, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bots := ctrl.GetActiveBots()
			if len(bots) == 0 {
				continue
			}
			infos := make([]controller.BotInfo, 0, len(bots))
			for _, b := range bots {
				infos = append(infos, b.Info())
			}
			logger.S().Infof("\n%s", reporter.Render(infos, ctrl.GetStats(), time.Now()))
		}
	}
}
