package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"javafmtd/internal/config"
	"javafmtd/internal/formatter"
	"javafmtd/internal/server"
)

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

type formatFlags struct {
	write bool
	check bool
}

// languageFor maps a file extension to an editor language id.
func languageFor(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".java":
		return formatter.LanguageJava, true
	case ".md", ".markdown":
		return formatter.LanguageMarkdown, true
	default:
		return "", false
	}
}

func runFormat(ctx context.Context, cfg config.Config, files []string, flags formatFlags, out io.Writer) error {
	rt, err := server.NewRuntime(cfg, server.RuntimeDeps{})
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Stop(stopCtx); err != nil {
			log.Printf("WARN: runtime stop: %v", err)
		}
	}()

	if cfg.Formatter.Backend == config.BackendService {
		if err := rt.Registry.Ensure(ctx); err != nil {
			return fmt.Errorf("format service: %w", err)
		}
	}
	return formatFiles(ctx, rt.Provider, files, flags, out)
}

func formatFiles(ctx context.Context, p *formatter.Provider, files []string, flags formatFlags, out io.Writer) error {
	var unformatted []string
	for _, path := range files {
		lang, ok := languageFor(path)
		if !ok {
			return fmt.Errorf("%s: %w", path, formatter.ErrUnsupportedLanguage)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		doc := formatter.Document{URI: "file://" + abs, LanguageID: lang, Text: string(raw)}
		edits, err := p.ProvideEdits(ctx, doc)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		formatted, err := formatter.ApplyEdits(doc.Text, edits)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		switch {
		case flags.check:
			if formatted != doc.Text {
				unformatted = append(unformatted, path)
				fmt.Fprintln(out, path)
			}
		case flags.write:
			if formatted == doc.Text {
				continue
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(formatted), info.Mode().Perm()); err != nil {
				return err
			}
			log.Printf("INFO: formatted %s", path)
		default:
			if _, err := io.WriteString(out, formatted); err != nil {
				return err
			}
		}
	}
	if len(unformatted) > 0 {
		return &exitError{code: 1, msg: fmt.Sprintf("%d file(s) need formatting", len(unformatted))}
	}
	return nil
}

func printStatus(ctx context.Context, cfg config.Config, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL(cfg.Listen), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon at %s unreachable: %w", cfg.Listen, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status request failed: %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return renderStatus(body, out)
}

func statusURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	}
	return "http://" + listen + "/api/v1/status"
}

// renderStatus re-encodes the JSON status document as YAML.
func renderStatus(body []byte, out io.Writer) error {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
