// Package proc, denetlenen oyun sunucusu çocuk sürecini yönetir.
//
// Süreç, bir kabuk (/bin/sh -c "<command>") üzerinden başlatılır, böylece
// çağıran taraf dizin değişiklikleri ve yönlendirmeler içeren karmaşık
// komut dizeleri verebilir. stdin/stdout/stderr pipe'ları exec.Cmd üzerinden
// açılır; stdout ve stderr için ayrı birer reader goroutine'i her okuduğu
// veriyi ilgili iobuf.Buffer'a ekler. Okumalar bloklayıcıdır — veri yokken
// goroutine pipe üzerinde bekler, bu yüzden busy-loop ya da uyku gerekmez.
package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/akinalpfdn/dlsupervisor/iobuf"
	"github.com/akinalpfdn/dlsupervisor/metrics"
)

// Stream, hangi pipe'ın okunacağını seçer.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// PumpPollInterval, tüketici tarafın (supervisor log pump'ı) ReadLine boş
// döndüğünde uyuyacağı önerilen süredir — çocuk tarafı bufio.Reader'ın kendi
// bloklayan okuması ile beslendiği için ChildProcess'in kendisi bu aralıkta
// ayrı bir polling uykusuna ihtiyaç duymaz.
const PumpPollInterval = 10 * time.Millisecond

// notExited, süreç hâlâ çalışırken ExitCode()'un döndüreceği değerdir.
const notExited = -1

// ChildProcess, tek bir çocuk süreci ve onun stdout/stderr tamponlarını
// sarmalar.
type ChildProcess struct {
	command string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	running bool
	exitErr error

	stdoutBuf *iobuf.Buffer
	stderrBuf *iobuf.Buffer

	exitCode atomic.Int64

	wg     sync.WaitGroup
	exited sync.WaitGroup // wait() çıkış durumunu kaydedince Done olur
	logger *slog.Logger

	metrics *metrics.Metrics
}

// SetMetrics, Prometheus sayaçlarını bağlar. nil geçilmesi metrikleri
// devre dışı bırakır (test ve gömülü kullanım için).
func (c *ChildProcess) SetMetrics(m *metrics.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// New, henüz başlatılmamış bir ChildProcess döner. command, bir POSIX
// kabuğuna geçirilecek tam komut dizesidir. compactionThreshold, stdout ve
// stderr tamponlarına geçirilir; <= 0 ise iobuf.DefaultCompactionThreshold
// kullanılır.
func New(command string, compactionThreshold int) *ChildProcess {
	return &ChildProcess{
		command:   command,
		stdoutBuf: iobuf.New(compactionThreshold),
		stderrBuf: iobuf.New(compactionThreshold),
		logger:    slog.Default().With("component", "proc"),
	}
}

// Run, çocuk süreci başlatır. Zaten çalışıyorsa hata döner.
func (c *ChildProcess) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("proc: already running")
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", c.command)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("proc: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("proc: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("proc: stderr pipe: %w", err)
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(2*time.Second),
		backoff.WithMaxElapsedTime(5*time.Second),
	)

	startErr := backoff.Retry(func() error {
		return cmd.Start()
	}, backoff.WithMaxRetries(b, 2))
	if startErr != nil {
		c.mu.Unlock()
		return fmt.Errorf("proc: spawn failed: %w", startErr)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.running = true
	c.exitCode.Store(notExited)
	m := c.metrics
	c.mu.Unlock()

	if m != nil {
		m.ChildRestarts.Inc()
	}

	c.logger.Info("child process started", "pid", cmd.Process.Pid, "command", c.command)

	c.wg.Add(2)
	go c.pump(stdout, c.stdoutBuf, "stdout")
	go c.pump(stderr, c.stderrBuf, "stderr")

	c.exited.Add(1)
	go c.wait()

	return nil
}

// pump, bir pipe'tan satır satır okur ve her satırı ilgili tampona ekler.
// Veri bitip EOF görüldüğünde döner; wait() süreç kapandığında bu pipe'ların
// da kapanmasını sağlar.
func (c *ChildProcess) pump(r io.Reader, buf *iobuf.Buffer, name string) {
	defer c.wg.Done()

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			buf.AppendString(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Warn("pipe read error", "stream", name, "error", err)
			}
			return
		}
	}
}

// wait, süreç kapanana kadar bloklanır ve çıkış kodunu kaydeder.
func (c *ChildProcess) wait() {
	defer c.exited.Done()

	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()

	err := cmd.Wait()
	c.wg.Wait() // pipe'ların hepsinin EOF görmesini bekle

	c.mu.Lock()
	c.running = false
	c.exitErr = err
	c.mu.Unlock()

	code := exitCodeFromError(err)
	c.exitCode.Store(int64(code))

	if err != nil {
		c.logger.Info("child process exited", "exitCode", code, "error", err)
	} else {
		c.logger.Info("child process exited", "exitCode", code)
	}
}

// exitCodeFromError, normal çıkışta gerçek exit status'ü, sinyalle
// sonlandırılmışsa sinyal numarasının negatifini döner.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return -int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	return notExited
}

// Send, verilen veriyi çocuğun stdin'ine yazar. Geçici yazma hatalarına
// karşı sınırlı bir backoff ile yeniden dener; süreç tamamen gittiyse hata
// döner.
func (c *ChildProcess) Send(data string) error {
	c.mu.Lock()
	stdin := c.stdin
	running := c.running
	c.mu.Unlock()

	if !running || stdin == nil {
		return fmt.Errorf("proc: child is not running")
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
		backoff.WithMaxInterval(200*time.Millisecond),
		backoff.WithMaxElapsedTime(time.Second),
	)

	return backoff.Retry(func() error {
		_, err := io.WriteString(stdin, data)
		if err != nil && errors.Is(err, syscall.EINTR) {
			return err // retryable
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithMaxRetries(b, 3))
}

// ReadLine, verilen stream'den bir sonraki tam satırı döner; hazır satır
// yoksa boş string döner.
func (c *ChildProcess) ReadLine(stream Stream) string {
	return c.bufferFor(stream).ReadLine()
}

// ReadAll, verilen stream'in kalan tüm içeriğini döner ve tamponu boşaltır.
func (c *ChildProcess) ReadAll(stream Stream) string {
	return c.bufferFor(stream).ReadAll()
}

func (c *ChildProcess) bufferFor(stream Stream) *iobuf.Buffer {
	if stream == Stderr {
		return c.stderrBuf
	}
	return c.stdoutBuf
}

// Stop, çocuğa kibar sonlandırma sinyali (SIGTERM) gönderir. Beklemez.
func (c *ChildProcess) Stop() error {
	c.mu.Lock()
	cmd := c.cmd
	running := c.running
	c.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(syscall.SIGTERM)
}

// Kill, çocuğa zorla sonlandırma sinyali (SIGKILL) gönderir.
func (c *ChildProcess) Kill() error {
	c.mu.Lock()
	cmd := c.cmd
	running := c.running
	c.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// Running, çocuğun hâlâ çalışıp çalışmadığını söyler.
func (c *ChildProcess) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ExitCode, süreç hâlâ çalışıyorsa -1, normal çıkışta gerçek durum kodunu,
// sinyalle sonlandırıldıysa sinyal numarasının negatifini döner.
func (c *ChildProcess) ExitCode() int {
	return int(c.exitCode.Load())
}

// Wait, çocuk süreç tamamen kapanana kadar (reader goroutine'leri dahil)
// bloklanır. Shutdown sıralamasında kullanılır.
func (c *ChildProcess) Wait() {
	c.wg.Wait()
	c.exited.Wait()
}
