package moderation

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadForbiddenRules, "keyword hours" biçiminde boşlukla ayrılmış satırlardan
// oluşan dosyayı okur. "#" ile başlayan satırlar ve boş satırlar atlanır.
// Anahtarın başındaki "/" (komut öneki) varsa düşürülür. Dosya yoksa boş
// bir tane oluşturulur ve boş kural listesi döner.
func LoadForbiddenRules(path string) ([]ForbiddenRule, error) {
	lines, err := readLinesOrCreate(path)
	if err != nil {
		return nil, err
	}

	var rules []ForbiddenRule
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		keyword := strings.TrimPrefix(fields[0], "/")
		hours, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}

		rules = append(rules, ForbiddenRule{SubstringKey: keyword, BanHours: hours})
	}

	return rules, nil
}

// SaveForbiddenRules, verilen kuralları "keyword hours" biçiminde dosyaya
// yazar — ops tarafından elle düzenlenen dosyayı programatik olarak
// yeniden yazmak gerektiğinde kullanılır (bkz. oplist hot-reload).
func SaveForbiddenRules(path string, rules []ForbiddenRule) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, rule := range rules {
		if _, err := fmt.Fprintf(w, "%s %d\n", rule.SubstringKey, rule.BanHours); err != nil {
			return err
		}
	}
	return w.Flush()
}
