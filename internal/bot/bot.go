package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/EgorLis/Bottlebot/internal/bottle"
	"github.com/EgorLis/Bottlebot/internal/config"
	"github.com/EgorLis/Bottlebot/internal/onebot"
	"github.com/EgorLis/Bottlebot/internal/quota"
)

// bottleAPI — контракт клиента bottle-API (в тестах подменяется фейком).
type bottleAPI interface {
	Call(ctx context.Context, action bottle.Action, userID, text, imageURL string) (*bottle.Bottle, error)
}

type BottleBot struct {
	ob    *onebot.Client
	api   bottleAPI
	quota *quota.Store
	cfg   *config.Config
	log   *zap.Logger

	// общий лимитер на поток команд, чтобы флуд не выедал квоту API
	limiter *rate.Limiter

	ops *http.Server

	apiTimeout time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func New(cfg *config.Config, log *zap.Logger) (*BottleBot, error) {
	store, err := quota.Open(filepath.Join(cfg.Bot.DataDir, "user_data.json"), log.Named("quota"))
	if err != nil {
		return nil, fmt.Errorf("open quota store: %w", err)
	}

	timeout := time.Duration(cfg.Bottle.APITimeoutSec) * time.Second

	b := &BottleBot{
		api:        bottle.New(cfg.Bottle.APIURL, cfg.Bottle.APIKey, timeout, log.Named("bottle")),
		quota:      store,
		cfg:        cfg,
		log:        log,
		limiter:    rate.NewLimiter(rate.Limit(cfg.Bot.CommandsPerSec), cfg.Bot.CommandBurst),
		apiTimeout: timeout,
	}

	ob := onebot.New(onebot.Config{
		URL:         cfg.OneBot.URL,
		AccessToken: cfg.OneBot.AccessToken,
	}, log.Named("onebot"))

	ob.OnConnecting = func() { log.Info("onebot connecting", zap.String("url", cfg.OneBot.URL)) }
	ob.OnConnected = func() { log.Info("onebot connected") }
	ob.OnDisconnected = func() { log.Info("onebot disconnected") }
	ob.OnError = func(err error) { log.Warn("onebot error", zap.Error(err)) }
	ob.OnEvent = b.handleEvent

	b.ob = ob
	return b, nil
}

func (b *BottleBot) Start() error {
	if b == nil {
		return errors.New("bot is nil")
	}
	if b.stopCh != nil {
		return errors.New("already started")
	}
	b.stopCh = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := b.ob.Connect(ctx); err != nil {
		cancel()
		return err
	}

	if b.cfg.Ops.Port > 0 {
		b.startOps()
	}

	// сторож для остановки: сначала закрываем сеть, потом финальный
	// сброс квот на диск. Оба шага обязаны выполниться (или громко упасть).
	stop := b.stopCh
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		<-stop

		if b.ops != nil {
			shCtx, shCancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := b.ops.Shutdown(shCtx); err != nil {
				b.log.Error("ops server shutdown failed", zap.Error(err))
			}
			shCancel()
		}

		cancel()
		b.ob.Disconnect()

		if err := b.quota.Save(); err != nil {
			b.log.Error("final quota flush failed", zap.Error(err))
		} else {
			b.log.Info("quota flushed, bot stopped")
		}
	}()

	return nil
}

func (b *BottleBot) Stop() {
	b.mu.Lock()
	ch := b.stopCh
	b.stopCh = nil
	b.mu.Unlock()

	if ch != nil {
		close(ch)   // безопасно: повторный Stop() ничего не делает
		b.wg.Wait() // дождёмся остановки фоновой горутины
	}
}

// startOps поднимает служебный HTTP: /healthz и /metrics.
func (b *BottleBot) startOps() {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !b.ob.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("onebot disconnected"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	b.ops = &http.Server{
		Addr:              fmt.Sprintf(":%d", b.cfg.Ops.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.log.Info("ops server listening", zap.Int("port", b.cfg.Ops.Port))
		if err := b.ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.log.Error("ops server failed", zap.Error(err))
		}
	}()
}
