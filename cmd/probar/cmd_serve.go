package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paiml/probar/internal/scorer"
)

// newServeCmd builds the `serve` command tree. The static-file/dev-server
// surface itself — hot reload, CORS, cross-origin isolation headers — is
// an external collaborator to the core per its CLI contract; this
// implementation is deliberately thin, a plain http.FileServer with the
// requested headers, while `serve tree` and `serve score` drive real core
// components.
func newServeCmd() *cobra.Command {
	var (
		port                uint16
		lint                bool
		watch               bool
		cors                bool
		crossOriginIsolated bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the project directory over HTTP for browser-driven playbooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				logger.Warn("--watch is not implemented; serving a static snapshot")
			}
			if lint {
				logger.Info("lint mode requested; run `probar serve score` for a structural report instead")
			}

			mux := http.NewServeMux()
			fs := http.FileServer(http.Dir(probarRoot))
			mux.Handle("/", withHeaders(fs, cors, crossOriginIsolated))

			addr := fmt.Sprintf(":%d", port)
			logger.Info("serving", zap.String("addr", addr), zap.String("root", probarRoot))
			return http.ListenAndServe(addr, mux)
		},
	}
	cmd.Flags().Uint16Var(&port, "port", 8080, "listen port")
	cmd.Flags().BoolVar(&lint, "lint", false, "log a hint to run `serve score`; the server still starts")
	cmd.Flags().BoolVar(&watch, "watch", false, "accepted but not implemented: logs a warning and serves a static snapshot")
	cmd.Flags().BoolVar(&cors, "cors", false, "send permissive CORS headers")
	cmd.Flags().BoolVar(&crossOriginIsolated, "cross-origin-isolated", false, "send COOP/COEP headers for SharedArrayBuffer access")

	cmd.AddCommand(newServeTreeCmd(), newServeScoreCmd())
	return cmd
}

func withHeaders(next http.Handler, cors, coi bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cors {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		if coi {
			w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
			w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
		}
		next.ServeHTTP(w, r)
	})
}

func newServeTreeCmd() *cobra.Command {
	var (
		depth  uint32
		filter string
	)
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "print the project directory tree probar's scorer will walk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printTree(probarRoot, depth, filter)
		},
	}
	cmd.Flags().Uint32Var(&depth, "depth", 0, "maximum depth (0 = unlimited)")
	cmd.Flags().StringVar(&filter, "filter", "", "glob filter applied to file names")
	return cmd
}

func printTree(root string, maxDepth uint32, filter string) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 1, ' ', 0)
	defer tw.Flush()

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if rel == "." {
			return nil
		}
		if maxDepth > 0 && uint32(strings.Count(filepath.ToSlash(rel), "/")+1) > maxDepth {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if filter != "" && !info.IsDir() {
			if ok, _ := filepath.Match(filter, info.Name()); !ok {
				return nil
			}
		}
		kind := "file"
		if info.IsDir() {
			kind = "dir"
		}
		fmt.Fprintf(tw, "%s\t%s\n", rel, kind)
		return nil
	})
}

func newServeScoreCmd() *cobra.Command {
	var (
		min     uint32
		format  string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "score the project directory against probar's testing-maturity rubric",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			evidence, err := scorer.Collect(ctx, probarRoot)
			if err != nil {
				return fmt.Errorf("collect evidence: %w", err)
			}
			sc, err := scorer.Score(ctx, evidence)
			if err != nil {
				return fmt.Errorf("score project: %w", err)
			}

			switch format {
			case "json":
				data, err := sc.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			default:
				fmt.Print(sc.Table())
			}

			if verbose {
				for _, e := range evidence {
					logger.Debug("evidence", zap.String("category", e.Category), zap.String("file", e.File), zap.Int("points", e.Points))
				}
			}

			if sc.Total < int(min) {
				return fmt.Errorf("score %d is below the required minimum %d", sc.Total, min)
			}
			return nil
		},
	}
	cmd.Flags().Uint32Var(&min, "min", 0, "minimum passing score; non-zero exit if not met")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table|json")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log each piece of collected evidence")
	return cmd
}
