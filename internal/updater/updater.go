// Package updater migrates strategy definition files from the v2 interface
// naming to v3: method, column, property, order-type, and time-in-force
// renames plus the interface version pin. Files are backed up before any
// rewrite.
package updater

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// rule is one regex rewrite applied to a strategy file.
type rule struct {
	re   *regexp.Regexp
	repl string
}

func (r rule) apply(content string) (string, int) {
	n := len(r.re.FindAllStringIndex(content, -1))
	if n == 0 {
		return content, 0
	}
	return r.re.ReplaceAllString(content, r.repl), n
}

var methodRenames = map[string]string{
	"populate_buy_trend":  "populate_entry_trend",
	"populate_sell_trend": "populate_exit_trend",
	"custom_sell":         "custom_exit",
	"check_buy_timeout":   "check_entry_timeout",
	"check_sell_timeout":  "check_exit_timeout",
}

var columnRenames = map[string]string{
	"buy":      "enter_long",
	"sell":     "exit_long",
	"buy_tag":  "enter_tag",
	"sell_tag": "exit_tag",
}

var propertyRenames = map[string]string{
	"use_sell_signal":          "use_exit_signal",
	"sell_profit_only":         "exit_profit_only",
	"sell_profit_offset":       "exit_profit_offset",
	"ignore_roi_if_buy_signal": "ignore_roi_if_entry_signal",
}

var orderTypeRenames = map[string]string{
	"buy":           "entry",
	"sell":          "exit",
	"emergencysell": "emergency_exit",
	"forcesell":     "force_exit",
	"forcebuy":      "force_entry",
}

var tradePropertyRenames = map[string]string{
	"sell_reason":           "exit_reason",
	"nr_of_successful_buys": "nr_of_successful_entries",
}

var (
	interfaceVersionRE = regexp.MustCompile(`INTERFACE_VERSION\s*=\s*[0-9]+`)
	strategyClassRE    = regexp.MustCompile(`(class\s+\w+\s*\([^)]*IStrategy[^)]*\)\s*:)`)
)

// buildRules assembles the rewrite rule set. Quoted-token renames get one
// rule per quote character.
func buildRules() []rule {
	var rules []rule

	for old, repl := range methodRenames {
		rules = append(rules,
			rule{regexp.MustCompile(`def\s+` + old + `\s*\(`), "def " + repl + "("},
			rule{regexp.MustCompile(`self\.` + old + `\s*\(`), "self." + repl + "("},
		)
	}

	for old, repl := range columnRenames {
		for _, q := range []string{`'`, `"`} {
			rules = append(rules, rule{
				regexp.MustCompile(`dataframe\[` + q + old + q + `\]`),
				`dataframe[` + q + repl + q + `]`,
			})
		}
	}

	for old, repl := range propertyRenames {
		rules = append(rules,
			rule{regexp.MustCompile(old + `\s*=`), repl + " ="},
			rule{regexp.MustCompile(`self\.` + old), "self." + repl},
		)
	}

	// Order-type and time-in-force dict keys share the quoted "key": shape.
	for old, repl := range orderTypeRenames {
		for _, q := range []string{`'`, `"`} {
			rules = append(rules, rule{
				regexp.MustCompile(q + old + q + `\s*:`),
				q + repl + q + `:`,
			})
		}
	}

	for old, repl := range tradePropertyRenames {
		rules = append(rules, rule{
			regexp.MustCompile(`trade\.` + old + `\b`),
			"trade." + repl,
		})
	}

	return rules
}

// Summary accounts for one UpdateAll pass.
type Summary struct {
	Updated   int
	Unchanged int
	Failed    int
	Changes   int // total individual rewrites across all files
}

// Updater rewrites strategy files in place after backing them up.
type Updater struct {
	root      string
	backupDir string
	ext       string
	rules     []rule
	log       *slog.Logger
}

// New returns an Updater over the strategies root. The backup directory is a
// sibling of the root.
func New(root, ext string, log *slog.Logger) *Updater {
	return &Updater{
		root:      root,
		backupDir: filepath.Join(filepath.Dir(root), filepath.Base(root)+"_backup"),
		ext:       ext,
		rules:     buildRules(),
		log:       log.With("component", "updater"),
	}
}

// BackupDir returns where the pre-rewrite copies live.
func (u *Updater) BackupDir() string { return u.backupDir }

// Backup copies the whole strategies tree aside, replacing any previous
// backup.
func (u *Updater) Backup() error {
	if err := os.RemoveAll(u.backupDir); err != nil {
		return fmt.Errorf("clearing old backup: %w", err)
	}
	if err := copyTree(u.root, u.backupDir); err != nil {
		return fmt.Errorf("backing up strategies: %w", err)
	}
	u.log.Info("created strategies backup", "path", u.backupDir)
	return nil
}

// UpdateAll backs up the tree, then rewrites every strategy file under the
// root. A file that fails to read or write is counted and skipped, never
// fatal for the pass.
func (u *Updater) UpdateAll() (Summary, error) {
	if err := u.Backup(); err != nil {
		return Summary{}, err
	}

	var sum Summary
	err := filepath.WalkDir(u.root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), u.ext) {
			return nil
		}

		changes, uerr := u.UpdateFile(path)
		switch {
		case uerr != nil:
			sum.Failed++
			u.log.Error("strategy update failed", "path", path, "error", uerr)
		case changes > 0:
			sum.Updated++
			sum.Changes += changes
			u.log.Info("strategy updated", "path", path, "changes", changes)
		default:
			sum.Unchanged++
		}
		return nil
	})
	if err != nil {
		return sum, err
	}

	u.log.Info("update pass complete",
		"updated", sum.Updated, "unchanged", sum.Unchanged, "failed", sum.Failed)
	return sum, nil
}

// UpdateFile rewrites one strategy file and returns how many individual
// rewrites were applied. The file is only written when something changed.
func (u *Updater) UpdateFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	content := string(data)

	updated, changes := u.Apply(content)
	if changes == 0 {
		return 0, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return 0, err
	}
	return changes, nil
}

// Apply runs the full rule set over content and pins INTERFACE_VERSION = 3.
// Returns the rewritten content and the number of rewrites.
func (u *Updater) Apply(content string) (string, int) {
	total := 0
	for _, r := range u.rules {
		var n int
		content, n = r.apply(content)
		total += n
	}

	content, pinned := pinInterfaceVersion(content)
	if pinned {
		total++
	}
	return content, total
}

// pinInterfaceVersion rewrites an existing INTERFACE_VERSION assignment to 3,
// or inserts one under the strategy class declaration. Reports whether the
// content changed.
func pinInterfaceVersion(content string) (string, bool) {
	if m := interfaceVersionRE.FindString(content); m != "" {
		if m == "INTERFACE_VERSION = 3" {
			return content, false
		}
		return interfaceVersionRE.ReplaceAllString(content, "INTERFACE_VERSION = 3"), true
	}
	if strategyClassRE.MatchString(content) {
		return strategyClassRE.ReplaceAllString(content, "$1\n    INTERFACE_VERSION = 3\n"), true
	}
	return content, false
}

// copyTree recursively copies src to dst, preserving file modes.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
