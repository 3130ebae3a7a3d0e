// Package cli is the ragclient command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	httpadapter "github.com/kirillkom/rag-document-assistant/internal/adapters/http"
	"github.com/kirillkom/rag-document-assistant/internal/bootstrap"
	"github.com/kirillkom/rag-document-assistant/internal/config"
	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/core/ports"
	"github.com/kirillkom/rag-document-assistant/internal/core/usecase"
	"github.com/kirillkom/rag-document-assistant/internal/observability/logging"
)

type env struct {
	apiURL   string
	logLevel string

	in  LineReader
	app *bootstrap.App

	closers []func()
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(nil)
}

func newRootCommand(in LineReader) *cobra.Command {
	rt := &env{in: in}

	root := &cobra.Command{
		Use:   "ragclient",
		Short: "Chat with documents indexed by a RAG service",
		Long: `ragclient uploads PDF documents to a retrieval-augmented generation
service and asks questions about them, either across all documents or
scoped to one.`,
		SilenceUsage: true,
		RunE:         rt.wrap(runShell),
	}
	root.PersistentFlags().StringVar(&rt.apiURL, "api-url", "", "RAG service base URL (overrides RAG_API_URL)")
	root.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "log level: debug, info, warn, error")

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive shell",
		Args:  cobra.NoArgs,
		RunE:  rt.wrap(runShell),
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check whether the service is reachable",
		Args:  cobra.NoArgs,
		RunE: rt.wrap(func(cmd *cobra.Command, rt *env, _ []string) error {
			connected, info := rt.app.StatusUC.CheckConnection(cmd.Context())
			renderer{out: cmd.OutOrStdout()}.health(connected, info)
			if !connected {
				return errors.New("service unavailable")
			}
			return nil
		}),
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show service status and document count",
		Args:  cobra.NoArgs,
		RunE: rt.wrap(func(cmd *cobra.Command, rt *env, _ []string) error {
			status := rt.app.StatusUC.Status(cmd.Context())
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			renderer{out: cmd.OutOrStdout()}.status(status)
			return nil
		}),
	}
	statusCmd.Flags().Bool("json", false, "output status as JSON")

	diagnoseCmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check every service endpoint",
		Args:  cobra.NoArgs,
		RunE: rt.wrap(func(cmd *cobra.Command, rt *env, _ []string) error {
			renderer{out: cmd.OutOrStdout()}.diagnostics(rt.app.StatusUC.Diagnose(cmd.Context()))
			return nil
		}),
	}

	uploadCmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload and process a PDF document",
		Args:  cobra.ExactArgs(1),
		RunE:  rt.wrap(runUpload),
	}
	uploadCmd.Flags().String("name", "", "display name (default: filename without extension)")
	addChunkFlags(uploadCmd)

	askCmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Ask one question, optionally after uploading documents",
		Args:  cobra.ExactArgs(1),
		RunE:  rt.wrap(runAsk),
	}
	askCmd.Flags().StringArray("upload", nil, "PDF to upload before asking (repeatable)")
	askCmd.Flags().String("doc", "", "restrict the question to the named document")
	addChunkFlags(askCmd)

	root.AddCommand(shellCmd, healthCmd, statusCmd, diagnoseCmd, uploadCmd, askCmd)
	return root
}

func addChunkFlags(cmd *cobra.Command) {
	cmd.Flags().Int("chunk-size", 0, "chunk size 500-2000 (default from RAG_CHUNK_SIZE)")
	cmd.Flags().Int("chunk-overlap", -1, "chunk overlap 0-500 (default from RAG_CHUNK_OVERLAP)")
}

type commandFunc func(cmd *cobra.Command, rt *env, args []string) error

// wrap builds the application around fn and tears it down afterwards.
func (rt *env) wrap(fn commandFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := rt.start(cmd); err != nil {
			return err
		}
		defer rt.stop()
		return fn(cmd, rt, args)
	}
}

func (rt *env) start(cmd *cobra.Command) error {
	cfg := config.Load()
	if rt.apiURL != "" {
		cfg.APIURL = rt.apiURL
	}
	if rt.logLevel != "" {
		cfg.LogLevel = rt.logLevel
	}

	logger, logCloser := logging.NewJSONLogger("ragclient", cfg.LogLevel, cfg.LogFile)
	slog.SetDefault(logger)
	rt.closers = append(rt.closers, func() { _ = logCloser.Close() })

	progressOut := cmd.ErrOrStderr()
	app, err := bootstrap.New(cmd.Context(), cfg, bootstrap.Options{
		Progress: func() ports.ProgressReporter { return newReporter(progressOut) },
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	rt.app = app
	rt.closers = append(rt.closers, app.Close)

	if cfg.MetricsPort != "" {
		router := httpadapter.NewRouter(app.StatusUC, app.Sessions, app.Storage, app.Metrics.Handler())
		rt.closers = append(rt.closers, serveAdmin(cfg.MetricsPort, router.Handler()))
	}
	return nil
}

func (rt *env) stop() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// serveAdmin exposes metrics, status and exports on localhost until the
// returned stop function runs.
func serveAdmin(port string, handler http.Handler) func() {
	server := &http.Server{
		Addr:              "127.0.0.1:" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("admin_listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("admin_server_failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Warn("admin_shutdown_failed", "error", err)
		}
	}
}

func runShell(cmd *cobra.Command, rt *env, _ []string) error {
	in := rt.in
	if in == nil {
		in = defaultReader(cmd.InOrStdin())
	}
	return NewShell(rt.app, in, cmd.OutOrStdout()).Run(cmd.Context())
}

func defaultReader(stdin io.Reader) LineReader {
	if f, ok := stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return promptReader{}
	}
	return newScriptReader(stdin)
}

func chunking(cmd *cobra.Command, cfg config.Config) (int, int) {
	size, _ := cmd.Flags().GetInt("chunk-size")
	if size <= 0 {
		size = cfg.ChunkSize
	}
	overlap, _ := cmd.Flags().GetInt("chunk-overlap")
	if overlap < 0 {
		overlap = cfg.ChunkOverlap
	}
	return size, overlap
}

func runUpload(cmd *cobra.Command, rt *env, args []string) error {
	out := renderer{out: cmd.OutOrStdout()}
	name, _ := cmd.Flags().GetString("name")
	size, overlap := chunking(cmd, rt.app.Config)

	doc, err := uploadFile(cmd.Context(), rt.app, args[0], name, size, overlap)
	if err != nil {
		out.failure("%s", usecase.UploadFailureMessage(err))
		return err
	}
	out.uploaded(doc)
	return nil
}

func runAsk(cmd *cobra.Command, rt *env, args []string) error {
	out := renderer{out: cmd.OutOrStdout()}
	uploads, _ := cmd.Flags().GetStringArray("upload")
	docName, _ := cmd.Flags().GetString("doc")
	size, overlap := chunking(cmd, rt.app.Config)

	for _, path := range uploads {
		doc, err := uploadFile(cmd.Context(), rt.app, path, "", size, overlap)
		if err != nil {
			out.failure("%s", usecase.UploadFailureMessage(err))
			return err
		}
		out.uploaded(doc)
	}

	if docName != "" {
		var ref *domain.DocumentRef
		for _, doc := range rt.app.Sessions.Snapshot().Documents {
			if doc.Name == docName {
				r := doc.Ref()
				ref = &r
				break
			}
		}
		if ref == nil {
			return fmt.Errorf("document %q was not uploaded in this session: %w", docName, domain.ErrDocumentNotFound)
		}
		if err := rt.app.Sessions.SetSelectedDocument(ref); err != nil {
			return err
		}
	}

	conv, index, err := rt.app.QueryUC.Ask(cmd.Context(), args[0])
	if conv == nil {
		return err
	}
	out.answer(conv, index, err)
	return err
}
