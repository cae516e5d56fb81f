// Package oplist, sunucunun operatör listesini (server/ops.json) ve yasak
// komut tablosunu (data/forbidden_commands.list) izler.
//
// Orijinal uygulama ops.json'ı satır-altı bir alt dize taramasıyla ayrıştırıyordu;
// burada gerçek bir JSON ayrıştırıcı (encoding/json) kullanıyoruz — dosya
// makine tarafından üretildiği için bu fazladan sağlamlık bedava geliyor.
package oplist

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/akinalpfdn/dlsupervisor/moderation"
)

// OpEntry, Minecraft ops.json'ındaki tek bir operatör kaydıdır.
type OpEntry struct {
	UUID                string `json:"uuid"`
	Name                string `json:"name"`
	Level               int    `json:"level"`
	BypassesPlayerLimit bool   `json:"bypassesPlayerLimit"`
}

// List, operatör listesini tutar ve dosya değişikliklerinde kendini yeniler.
type List struct {
	mu   sync.RWMutex
	ops  []OpEntry
	path string

	logger  *slog.Logger
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// Load, verilen yoldaki ops.json'ı okuyup ayrıştırır. Dosya yoksa boş bir
// liste döner (sunucu henüz hiç operatör tanımlamamış olabilir).
func Load(path string) (*List, error) {
	l := &List{path: path, logger: slog.Default().With("component", "oplist")}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *List) reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.mu.Lock()
			l.ops = nil
			l.mu.Unlock()
			return nil
		}
		return fmt.Errorf("oplist: read %s: %w", l.path, err)
	}

	var entries []OpEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("oplist: parse %s: %w", l.path, err)
	}

	l.mu.Lock()
	l.ops = entries
	l.mu.Unlock()

	return nil
}

// Names, yalnızca operatör adlarını döner (API'nin GET /api/ops yanıtı).
func (l *List) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.ops))
	for i, op := range l.ops {
		out[i] = op.Name
	}
	return out
}

// Entries, operatör kayıtlarının anlık kopyasını döner.
func (l *List) Entries() []OpEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]OpEntry, len(l.ops))
	copy(out, l.ops)
	return out
}

// WatchForbiddenRules, hem ops.json hem de forbidden_commands.list dosyasını
// fsnotify ile izler; değişiklik algılandığında ilgili dosyayı yeniden yükler.
// forbiddenPath değiştiğinde onReload çağrılır ki Registry kuralları tazeleyebilsin.
func (l *List) WatchForbiddenRules(forbiddenPath string, onReload func([]moderation.ForbiddenRule)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("oplist: create watcher: %w", err)
	}

	if err := watcher.Add(l.path); err != nil {
		watcher.Close()
		return fmt.Errorf("oplist: watch %s: %w", l.path, err)
	}
	if err := watcher.Add(forbiddenPath); err != nil {
		watcher.Close()
		return fmt.Errorf("oplist: watch %s: %w", forbiddenPath, err)
	}

	l.watcher = watcher
	l.stop = make(chan struct{})

	go func() {
		for {
			select {
			case <-l.stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				switch ev.Name {
				case l.path:
					if err := l.reload(); err != nil {
						l.logger.Warn("failed to reload ops.json", "error", err)
					} else {
						l.logger.Info("reloaded ops.json", "count", len(l.Names()))
					}
				case forbiddenPath:
					rules, err := moderation.LoadForbiddenRules(forbiddenPath)
					if err != nil {
						l.logger.Warn("failed to reload forbidden commands list", "error", err)
						continue
					}
					if onReload != nil {
						onReload(rules)
					}
					l.logger.Info("reloaded forbidden commands list", "count", len(rules))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("watcher error", "error", err)
			}
		}
	}()

	return nil
}

// Close, izleyici goroutine'ini durdurur ve fsnotify kaynaklarını serbest
// bırakır. Watch hiç çağrılmadıysa no-op'tur.
func (l *List) Close() error {
	if l.watcher == nil {
		return nil
	}
	close(l.stop)
	return l.watcher.Close()
}
