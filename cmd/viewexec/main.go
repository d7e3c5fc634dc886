package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hanpama/viewexec/internal/metrics"
	"github.com/hanpama/viewexec/internal/server"
	"github.com/hanpama/viewexec/internal/view"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "viewexec",
		Short:         "Build, run and serve view definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "YAML config file (env VIEWEXEC_* overrides)")
	root.AddCommand(newServeCmd(&cfgPath), newRunCmd(&cfgPath), newValidateCmd(&cfgPath))
	return root
}

func newServeCmd(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve page and REST displays over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			sopts := []server.Option{server.WithTimeout(a.cfg.Server.Timeout), server.WithAccount(a.account)}
			if a.cfg.Server.Pretty {
				sopts = append(sopts, server.WithPretty())
			}
			h, err := server.New(a.env, a.store, sopts...)
			if err != nil {
				return fmt.Errorf("server init: %w", err)
			}

			mux := http.NewServeMux()
			mux.Handle("/", h)
			if a.cfg.Metrics.Enabled {
				reg := prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
				off := metrics.New(reg).Subscribe(a.bus)
				defer off()
				mux.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			}

			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			a.logger.Info("view server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from server.addr)")
	return cmd
}

func newRunCmd(cfgPath *string) *cobra.Command {
	var (
		displayID string
		params    []string
		user      string
		preview   bool
		pretty    bool
	)
	cmd := &cobra.Command{
		Use:   "run <view> [args...]",
		Short: "Execute one display and print its output as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.store.Load(args[0])
			if err != nil {
				return err
			}
			req := view.Request{Query: map[string][]string{}}
			for _, p := range params {
				k, val, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("invalid --param %q, want key=value", p)
				}
				req.Query[k] = append(req.Query[k], val)
			}
			e := view.New(v, &a.env, view.WithRequest(req), view.WithAccount(a.enforcer.Account(user)))
			defer e.Destroy()

			var out any
			if preview {
				e.SetLivePreview(true)
				o, err := e.Preview(cmd.Context(), displayID, args[1:])
				if err != nil {
					return err
				}
				out = struct {
					Output  any      `json:"output"`
					Queries []string `json:"queries"`
				}{o, e.CapturedQueries()}
			} else {
				o, err := e.ExecuteDisplay(cmd.Context(), displayID, args[1:])
				if err != nil {
					return err
				}
				if o == nil {
					return fmt.Errorf("view %s display %s: status %d", v.Name, e.DisplayID(), e.Response().Status)
				}
				if o.ContentType != "" {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), o.Body)
					return err
				}
				out = o
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&displayID, "display", "default", "display to execute")
	cmd.Flags().StringArrayVar(&params, "param", nil, "request parameter key=value, repeatable")
	cmd.Flags().StringVar(&user, "user", "", "account subject checked against the access policy")
	cmd.Flags().BoolVar(&preview, "preview", false, "run as a live preview and include captured queries")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	return cmd
}

func newValidateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [view...]",
		Short: "Validate view definitions against the schema and plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			names := args
			if len(names) == 0 {
				if names, err = a.store.List(); err != nil {
					return err
				}
			}
			var errs *multierror.Error
			for _, name := range names {
				v, err := a.store.Load(name)
				if err == nil {
					err = view.New(v, &a.env).Validate()
				}
				if err != nil {
					errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", name)
			}
			return errs.ErrorOrNil()
		},
	}
}
