// Package main, dlsupervisor'ın giriş noktasıdır.
//
// Wire-up sırası (spec.md §2 bağımlılık sırasını izler):
//  1.  Config'i yükle (pozisyonel CLI argümanları + env)
//  2.  ChildProcess'i oluştur (henüz başlatma — Supervisor.Run yapar)
//  3.  BanRegistry'yi yükle (kalıcı dosyalardan)
//  4.  Supervisor'ı kur (RequestVoteEngine'i kendi içinde inşa eder)
//  5.  Prometheus metriklerini bağla
//  6.  ops.json'u yükle, fsnotify ile izlemeye al
//  7.  Supervisor'ı çalıştır (çocuk süreç + log pump + sweeper'lar)
//  8.  AdminAPI'yi kur, HTTP server'ı başlat
//  9.  Graceful shutdown
//
// Global değişken yok — her şey burada oluşturulup birbirine bağlanıyor.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akinalpfdn/dlsupervisor/api"
	"github.com/akinalpfdn/dlsupervisor/config"
	"github.com/akinalpfdn/dlsupervisor/metrics"
	"github.com/akinalpfdn/dlsupervisor/moderation"
	"github.com/akinalpfdn/dlsupervisor/oplist"
	"github.com/akinalpfdn/dlsupervisor/proc"
	"github.com/akinalpfdn/dlsupervisor/supervisor"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] dlsupervisor starting...")

	// ─── 1. Config ───
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}
	log.Printf("[main] config loaded (port=%d, serverCmd=%q)", cfg.Server.Port, cfg.ServerCmd)

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		log.Fatalf("[main] failed to create data directory: %v", err)
	}
	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		log.Fatalf("[main] failed to create upload directory: %v", err)
	}

	// ─── 2. ChildProcess ───
	child := proc.New(cfg.ServerCmd, cfg.Sweep.CompactionThreshold)

	// ─── 3. BanRegistry ───
	registry, err := moderation.New(cfg.Data.PlayersPath(), cfg.Data.BannedPath(), cfg.Data.ForbiddenPath(), child)
	if err != nil {
		log.Fatalf("[main] failed to load ban registry: %v", err)
	}

	// ─── 4. Supervisor (RequestVoteEngine dahil) ───
	sup, err := supervisor.New(child, registry, cfg.Data.RequestsPath(), cfg.Upload.Dir, cfg.Voting.Threshold, cfg.Voting.UnexecutedRequestTTL)
	if err != nil {
		log.Fatalf("[main] failed to build supervisor: %v", err)
	}

	// ─── 5. Metrics ───
	m := metrics.New(prometheus.DefaultRegisterer)
	sup.SetMetrics(m)

	// ─── 6. Operator list (ops.json) + hot reload ───
	ops, err := oplist.Load(cfg.Data.OpsPath())
	if err != nil {
		log.Fatalf("[main] failed to load ops.json: %v", err)
	}
	if err := ops.WatchForbiddenRules(cfg.Data.ForbiddenPath(), registry.SetForbiddenRules); err != nil {
		log.Printf("[main] forbidden-command hot reload disabled: %v", err)
	}
	defer ops.Close()

	// ─── 7. Supervisor'ı çalıştır ───
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Run(ctx); err != nil {
		log.Fatalf("[main] failed to start supervisor: %v", err)
	}
	log.Println("[main] supervisor running, child process spawned")

	// ─── 8. AdminAPI + HTTP Server ───
	handler := api.New(sup, ops, cfg, m)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[main] server listening on %s", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	// ─── 9. Graceful Shutdown ───
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done
	log.Println("[main] shutting down...")

	cancel()

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		log.Printf("[main] forced HTTP shutdown: %v", err)
	}

	supCtx, supCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer supCancel()
	if err := sup.Shutdown(supCtx); err != nil {
		log.Printf("[main] supervisor shutdown error: %v", err)
	}

	log.Println("[main] dlsupervisor stopped gracefully")
}
