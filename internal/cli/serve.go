// serve.go implements "triage serve", the local diagnosis service.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/berth-dev/triage/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local diagnosis service",
	Long: `Serve POST /diagnose and GET /healthz. With OPENAI_API_KEY set the
prompt goes to the chosen OpenAI model, falling back to a simulated model on
any failure; without it every answer is simulated.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	opts := []server.Option{
		server.WithOracle(server.NewOracle(a.cfg.Server.OpenAIKey, a.cfg.Server.OpenAIBaseURL)),
	}
	if a.metrics != nil {
		opts = append(opts, server.WithRecorder(a.metrics))
	}
	return server.New(opts...).ListenAndServe(cmd.Context(), addr)
}
