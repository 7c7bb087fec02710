package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/app"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/pipeline"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/web"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the facewatch HTTP API for watchlist uploads, background video jobs,
the event log and dashboard statistics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (defaults to WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (defaults to WEB_HOST)")
}

// serverDeps exposes the application to the HTTP handlers.
func serverDeps(a *app.App) handlers.Deps {
	return handlers.Deps{
		Config: a.Config,
		Store:  a.Store,
		Sink:   a.Sink,
		NewOrchestrator: func(threshold float64, stride int) *pipeline.Orchestrator {
			return a.Orchestrator(app.RunOptions{Threshold: threshold, Stride: stride})
		},
		Health: func(ctx context.Context) (bool, bool) {
			h := a.CheckHealth(ctx)
			return h.Database, h.Detector
		},
		Logger: a.Logger,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	host, port := a.Config.Web.Host, a.Config.Web.Port
	if h := mustGetString(cmd, "host"); h != "" {
		host = h
	}
	if p := mustGetInt(cmd, "port"); p > 0 {
		port = p
	}

	server := web.NewServer(ctx, serverDeps(a), host, port, a.Config.Web.AllowedOrigins)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	fmt.Printf("Serving facewatch API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println("Server stopped")
	return nil
}
