package voting

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	blockStart = "=== REQUEST ==="
	blockEnd   = "=== END ==="
)

const timeLayout = "2006-01-02 15:04:05"

// Save, tüm istekleri "=== REQUEST ===" ... "=== END ===" blok biçiminde
// veri dosyasına yazar.
func (e *Engine) Save() error {
	e.mu.Lock()
	reqs := make([]*CommandRequest, 0, len(e.requests))
	for _, r := range e.requests {
		reqs = append(reqs, r)
	}
	e.mu.Unlock()

	f, err := os.Create(e.dataPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, req := range reqs {
		if err := writeBlock(w, req); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeBlock(w *bufio.Writer, req *CommandRequest) error {
	lines := []string{
		blockStart,
		"id|" + req.ID,
		"applicant|" + req.Applicant,
		"command|" + req.Command,
		"reason|" + req.Reason,
		"image|" + req.ImageRef,
		"created|" + req.CreatedAt.Format(timeLayout),
		"executed|" + boolToFlag(req.Executed),
		"executed_at|" + executedAtString(req),
		"votes|" + joinIPs(req.VotedIPs),
		blockEnd,
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func boolToFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func executedAtString(req *CommandRequest) string {
	if !req.Executed {
		return ""
	}
	return req.ExecutedAt.Format(timeLayout)
}

func joinIPs(ips map[string]struct{}) string {
	out := make([]string, 0, len(ips))
	for ip := range ips {
		out = append(out, ip)
	}
	return strings.Join(out, ",")
}

// load, veri dosyasını okuyup mevcut istekleri e.requests'e yükler.
// Dosya yoksa sessizce atlanır (boş başlangıç durumu).
func (e *Engine) load() error {
	f, err := os.Open(e.dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	var current *CommandRequest
	inBlock := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case blockStart:
			inBlock = true
			current = &CommandRequest{VotedIPs: make(map[string]struct{})}
			continue
		case blockEnd:
			if inBlock && current != nil && current.ID != "" {
				e.requests[current.ID] = current
			}
			inBlock = false
			current = nil
			continue
		}

		if !inBlock || current == nil {
			continue
		}

		sep := strings.Index(line, "|")
		if sep < 0 {
			continue // malformed line, skip silently (forward-compat)
		}
		key := line[:sep]
		value := line[sep+1:]

		switch key {
		case "id":
			current.ID = value
		case "applicant":
			current.Applicant = value
		case "command":
			current.Command = value
		case "reason":
			current.Reason = value
		case "image":
			current.ImageRef = value
		case "created":
			if t, err := time.ParseInLocation(timeLayout, value, time.Local); err == nil {
				current.CreatedAt = t
			}
		case "executed":
			current.Executed = value == "1"
		case "executed_at":
			if value != "" {
				if t, err := time.ParseInLocation(timeLayout, value, time.Local); err == nil {
					current.ExecutedAt = t
				}
			}
		case "votes":
			if value != "" {
				for _, ip := range strings.Split(value, ",") {
					ip = strings.TrimSpace(ip)
					if ip != "" {
						current.VotedIPs[ip] = struct{}{}
					}
				}
			}
		}
	}

	return scanner.Err()
}
