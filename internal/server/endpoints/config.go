package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/proposer/internal/api"
	"github.com/jackzampolin/proposer/internal/config"
	"github.com/jackzampolin/proposer/internal/svcctx"
)

// ConfigResponse lists every effective configuration key.
type ConfigResponse struct {
	File    string         `json:"file,omitempty"`
	Entries []config.Entry `json:"entries"`
}

// ConfigEndpoint handles GET /api/config.
type ConfigEndpoint struct{}

func (e *ConfigEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/config", e.handler
}

func (e *ConfigEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Show configuration
//	@Description	Effective configuration keys with defaults and descriptions. Literal API keys are redacted.
//	@Tags			config
//	@Produce		json
//	@Success		200	{object}	ConfigResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/config [get]
func (e *ConfigEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	cfgMgr := svcctx.ConfigFrom(r.Context())
	if cfgMgr == nil {
		writeError(w, http.StatusServiceUnavailable, "config not available")
		return
	}
	writeJSON(w, http.StatusOK, ConfigResponse{File: cfgMgr.ConfigFile(), Entries: cfgMgr.Entries()})
}

func (e *ConfigEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the server's effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ConfigResponse
			if err := client.Get(cmd.Context(), "/api/config", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
